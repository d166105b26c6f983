package businessflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/app/dto"
	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/amirphl/Yamata-WABA/utils"
)

// maxReportedIssues caps warnings and errors returned to the caller
const maxReportedIssues = 100

// defaultPhoneFields are tried in order when no phone field is given
var defaultPhoneFields = []string{
	"phone", "mobile", "whatsapp", "msisdn",
	"phone_number", "mobile_number", "whatsapp_number", "contact",
}

// MaterializeFlow freezes campaign rows into per-recipient send payloads
type MaterializeFlow interface {
	Materialize(ctx context.Context, req *dto.MaterializeRecipientsRequest, metadata *ClientMetadata) (*dto.MaterializeRecipientsResponse, error)
}

// MaterializeFlowImpl implements the materialization business flow
type MaterializeFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	templateRepo  repository.MessageTemplateRepository
	mappingRepo   repository.TemplateVariableMappingRepository
	contactRepo   repository.ContactRepository
	csvBatchRepo  repository.CsvBatchRepository
	audienceRepo  repository.AudienceRepository
	recipientRepo repository.MaterializedRecipientRepository
	auditRepo     repository.AuditLogRepository
	tx            repository.Transactor
	phones        *PhoneNormalizer
	now           func() time.Time
}

// NewMaterializeFlow creates a new materialize flow instance
func NewMaterializeFlow(
	campaignRepo repository.CampaignRepository,
	templateRepo repository.MessageTemplateRepository,
	mappingRepo repository.TemplateVariableMappingRepository,
	contactRepo repository.ContactRepository,
	csvBatchRepo repository.CsvBatchRepository,
	audienceRepo repository.AudienceRepository,
	recipientRepo repository.MaterializedRecipientRepository,
	auditRepo repository.AuditLogRepository,
	tx repository.Transactor,
	phones *PhoneNormalizer,
) MaterializeFlow {
	return &MaterializeFlowImpl{
		campaignRepo:  campaignRepo,
		templateRepo:  templateRepo,
		mappingRepo:   mappingRepo,
		contactRepo:   contactRepo,
		csvBatchRepo:  csvBatchRepo,
		audienceRepo:  audienceRepo,
		recipientRepo: recipientRepo,
		auditRepo:     auditRepo,
		tx:            tx,
		phones:        phones,
		now:           utils.UTCNow,
	}
}

// placeholder is one substitutable slot of a template
type placeholder struct {
	key   models.MappingKey
	token string
}

func (p placeholder) label() string {
	return fmt.Sprintf("%s {{%d}}", p.key.Component, p.key.Index)
}

// templatePlaceholders lists header, body then URL button slots
func templatePlaceholders(t *models.MessageTemplate) []placeholder {
	var out []placeholder
	if t.HasTextHeaderParam() {
		out = append(out, placeholder{key: models.MappingKey{Component: models.HeaderComponent, Index: 1}, token: "header_1"})
	}
	for i := 1; i <= t.BodyParamCount; i++ {
		out = append(out, placeholder{key: models.MappingKey{Component: models.BodyComponent, Index: i}, token: strconv.Itoa(i)})
	}
	for _, n := range t.DynamicURLButtons() {
		out = append(out, placeholder{key: models.MappingKey{Component: models.ButtonURLComponent(n), Index: 1}, token: "button_" + strconv.Itoa(n)})
	}
	return out
}

// identityMapping reads the column named after the placeholder token
func identityMapping(p placeholder) *models.TemplateVariableMapping {
	return &models.TemplateVariableMapping{
		Component:  p.key.Component,
		Index:      p.key.Index,
		SourceType: models.SourceTypeCsvColumn,
		SourceKey:  p.token,
		Required:   true,
	}
}

// effectiveMappings picks explicit, then saved, then identity per placeholder
func effectiveMappings(slots []placeholder, explicit, saved []*models.TemplateVariableMapping) map[models.MappingKey]*models.TemplateVariableMapping {
	out := make(map[models.MappingKey]*models.TemplateVariableMapping, len(slots))
	for _, m := range saved {
		out[m.Key()] = m
	}
	for _, m := range explicit {
		out[m.Key()] = m
	}
	for _, p := range slots {
		if _, ok := out[p.key]; !ok {
			out[p.key] = identityMapping(p)
		}
	}
	return out
}

// resolvedRow is a row whose placeholders all resolved
type resolvedRow struct {
	row          *RowContext
	phone        string
	headerParams []string
	params       []string
	buttonURLs   []string
	key          string
}

// issueLog collects capped warnings and row errors
type issueLog struct {
	warnings     []string
	warningCount int
	errors       []dto.RowErrorItem
	errorCount   int
}

func (l *issueLog) warn(format string, args ...any) {
	l.warningCount++
	if len(l.warnings) < maxReportedIssues {
		l.warnings = append(l.warnings, fmt.Sprintf(format, args...))
	}
}

func (l *issueLog) fail(row int, phone, message string) {
	l.errorCount++
	if len(l.errors) < maxReportedIssues {
		l.errors = append(l.errors, dto.RowErrorItem{Row: row, Phone: phone, Message: message})
	}
}

func (l *issueLog) finalWarnings() []string {
	out := l.warnings
	if l.warningCount > len(l.warnings) {
		out = append(out, fmt.Sprintf("and %d more warnings", l.warningCount-len(l.warnings)))
	}
	if out == nil {
		out = []string{}
	}
	return out
}

// Materialize resolves every row of the source against the campaign template.
// With Persist set, recipients are upserted by idempotency key in one transaction.
func (f *MaterializeFlowImpl) Materialize(ctx context.Context, req *dto.MaterializeRecipientsRequest, metadata *ClientMetadata) (*dto.MaterializeRecipientsResponse, error) {
	campaign, err := loadCampaign(ctx, f.campaignRepo, req.BusinessID, req.CampaignID)
	if err != nil {
		return nil, err
	}

	audienceName := strings.TrimSpace(req.AudienceName)
	if req.Persist && audienceName == "" {
		return nil, NewBusinessError("AUDIENCE_NAME_REQUIRED", "Audience name is required when persisting", ErrAudienceNameRequired)
	}

	template, err := f.resolveTemplate(ctx, campaign)
	if err != nil {
		return nil, err
	}

	explicit, err := mappingsFromItems(req.BusinessID, req.CampaignID, req.Mapping)
	if err != nil {
		return nil, NewBusinessError("MAPPING_VALIDATION_FAILED", "Variable mapping validation failed", err)
	}
	var saved []*models.TemplateVariableMapping
	if len(explicit) == 0 {
		saved, err = f.mappingRepo.ListByCampaign(ctx, req.CampaignID)
		if err != nil {
			return nil, NewBusinessError("MAPPING_LOOKUP_FAILED", "Failed to list variable mappings", err)
		}
	}

	rows, csvBatchID, err := f.loadRows(ctx, req)
	if err != nil {
		return nil, err
	}

	slots := templatePlaceholders(template)
	mappings := effectiveMappings(slots, explicit, saved)
	normalize := req.Normalize == nil || *req.Normalize
	deduplicate := req.Deduplicate == nil || *req.Deduplicate

	issues := &issueLog{}
	resolvers := NewValueResolvers()
	seenPhones := make(map[string]bool)
	seenKeys := make(map[string]bool)
	skipped := 0
	var resolved []*resolvedRow

	for _, row := range rows {
		rawPhone, ok := f.pickPhone(row, req.PhoneField)
		if !ok {
			issues.fail(row.RowNumber, "", "phone field not found or empty")
			continue
		}
		phone := strings.TrimSpace(rawPhone)
		if normalize {
			phone = f.phones.Normalize(rawPhone)
		}
		if phone == "" {
			issues.fail(row.RowNumber, rawPhone, "phone has no digits")
			continue
		}
		if deduplicate && seenPhones[phone] {
			skipped++
			continue
		}

		r, rowErr := resolveRow(row, phone, template, slots, mappings, resolvers, issues)
		if rowErr != "" {
			issues.fail(row.RowNumber, phone, rowErr)
			continue
		}

		r.key = RecipientIdempotencyKey(campaign.ID, phone, template.ID, r.headerParams, r.params, r.buttonURLs)
		if seenKeys[r.key] {
			skipped++
			issues.warn("row %d: identical payload for %s already materialized in this run", row.RowNumber, phone)
			continue
		}
		seenKeys[r.key] = true
		seenPhones[phone] = true
		resolved = append(resolved, r)
	}

	response := &dto.MaterializeRecipientsResponse{
		Materialized: len(resolved),
		Skipped:      skipped,
		ErrorCount:   issues.errorCount,
		Sample:       sampleOf(resolved),
		Warnings:     issues.finalWarnings(),
		Errors:       issues.errors,
	}
	if response.Errors == nil {
		response.Errors = []dto.RowErrorItem{}
	}

	if req.Persist {
		audienceID, err := f.persist(ctx, campaign, template, audienceName, csvBatchID, req.Source.Type, resolved)
		if err != nil {
			errMsg := fmt.Sprintf("Materialization failed for campaign %d: %s", campaign.ID, err.Error())
			_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionRecipientsMaterialized, errMsg, false, &errMsg, metadata)
			return nil, NewBusinessError("MATERIALIZE_PERSIST_FAILED", "Failed to persist materialized recipients", err)
		}
		response.AudienceID = &audienceID
		response.Persisted = true

		msg := fmt.Sprintf("Materialized %d recipients into audience %q of campaign %d (%d skipped, %d errors)",
			len(resolved), audienceName, campaign.ID, skipped, issues.errorCount)
		_ = createAuditLog(ctx, f.auditRepo, req.BusinessID, models.AuditActionRecipientsMaterialized, msg, true, nil, metadata)
	}

	recipientsMaterialized.WithLabelValues("materialized").Add(float64(len(resolved)))
	recipientsMaterialized.WithLabelValues("skipped").Add(float64(skipped))
	recipientsMaterialized.WithLabelValues("error").Add(float64(issues.errorCount))

	return response, nil
}

func (f *MaterializeFlowImpl) resolveTemplate(ctx context.Context, campaign *models.Campaign) (*models.MessageTemplate, error) {
	if campaign.TemplateID == nil {
		return nil, NewBusinessError("TEMPLATE_NOT_RESOLVED", "Campaign has no template", ErrTemplateNotResolved)
	}
	template, err := f.templateRepo.ByID(ctx, *campaign.TemplateID)
	if err != nil {
		return nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to lookup template", err)
	}
	if template == nil || template.BusinessID != campaign.BusinessID {
		return nil, NewBusinessError("TEMPLATE_NOT_RESOLVED", "Campaign template could not be resolved", ErrTemplateNotResolved)
	}
	return template, nil
}

// loadRows reads the row source; it also returns the csv batch id for csv sources
func (f *MaterializeFlowImpl) loadRows(ctx context.Context, req *dto.MaterializeRecipientsRequest) ([]*RowContext, *uint, error) {
	switch req.Source.Type {
	case dto.RowSourceCsvBatch:
		if req.Source.CsvBatchID == nil {
			return nil, nil, NewBusinessError("INVALID_ROW_SOURCE", "csv_batch_id is required", ErrInvalidRowSource)
		}
		batch, err := f.csvBatchRepo.ByID(ctx, *req.Source.CsvBatchID)
		if err != nil {
			return nil, nil, NewBusinessError("CSV_BATCH_LOOKUP_FAILED", "Failed to lookup csv batch", err)
		}
		if batch == nil || batch.BusinessID != req.BusinessID {
			return nil, nil, NewBusinessError("CSV_BATCH_NOT_FOUND", "CSV batch not found", ErrCsvBatchNotFound)
		}
		csvRows, err := f.csvBatchRepo.Rows(ctx, batch.ID, req.Limit)
		if err != nil {
			return nil, nil, NewBusinessError("CSV_ROWS_LOOKUP_FAILED", "Failed to read csv rows", err)
		}
		rows := make([]*RowContext, 0, len(csvRows))
		for _, r := range csvRows {
			rows = append(rows, &RowContext{RowNumber: r.RowNumber, Values: r.Values})
		}
		return rows, &batch.ID, nil

	case dto.RowSourceContacts:
		contacts, err := f.contactRepo.ListForBusiness(ctx, req.BusinessID, req.Source.ContactIDs, req.Limit)
		if err != nil {
			return nil, nil, NewBusinessError("CONTACTS_LOOKUP_FAILED", "Failed to read contacts", err)
		}
		if len(req.Source.ContactIDs) > 0 && len(contacts) == 0 {
			return nil, nil, NewBusinessError("CONTACTS_NOT_FOUND", "No contacts found", ErrContactsNotFound)
		}
		rows := make([]*RowContext, 0, len(contacts))
		for i, c := range contacts {
			rows = append(rows, &RowContext{RowNumber: i + 1, Values: contactValues(c), Contact: c})
		}
		return rows, nil, nil

	case dto.RowSourceAudience:
		if req.Source.AudienceID == nil {
			return nil, nil, NewBusinessError("INVALID_ROW_SOURCE", "audience_id is required", ErrInvalidRowSource)
		}
		audience, err := f.audienceRepo.ByID(ctx, *req.Source.AudienceID)
		if err != nil {
			return nil, nil, NewBusinessError("AUDIENCE_LOOKUP_FAILED", "Failed to lookup audience", err)
		}
		if audience == nil || audience.BusinessID != req.BusinessID {
			return nil, nil, NewBusinessError("AUDIENCE_NOT_FOUND", "Audience not found", ErrAudienceNotFound)
		}
		members, err := f.audienceRepo.Members(ctx, audience.ID, req.Limit)
		if err != nil {
			return nil, nil, NewBusinessError("AUDIENCE_MEMBERS_LOOKUP_FAILED", "Failed to read audience members", err)
		}
		rows := make([]*RowContext, 0, len(members))
		for i, m := range members {
			values := make(map[string]string, len(m.Values)+2)
			for k, v := range m.Values {
				values[k] = v
			}
			if _, ok := values["phone"]; !ok {
				values["phone"] = m.Phone
			}
			if _, ok := values["name"]; !ok && m.Name != "" {
				values["name"] = m.Name
			}
			rows = append(rows, &RowContext{RowNumber: i + 1, Values: values, MemberID: &m.ID})
		}
		return rows, audience.CsvBatchID, nil

	default:
		return nil, nil, NewBusinessErrorf("INVALID_ROW_SOURCE", "Unknown row source %q", ErrInvalidRowSource, req.Source.Type)
	}
}

func contactValues(c *models.Contact) map[string]string {
	values := make(map[string]string, len(c.Attributes)+3)
	for k, v := range c.Attributes {
		values[k] = v
	}
	values["name"] = c.Name
	values["phone"] = c.Phone
	values["email"] = c.Email
	return values
}

// pickPhone returns the explicit field, else the first default candidate present on the row
func (f *MaterializeFlowImpl) pickPhone(row *RowContext, field string) (string, bool) {
	if field = strings.TrimSpace(field); field != "" {
		return row.Column(field)
	}
	for _, candidate := range defaultPhoneFields {
		if v, ok := row.Column(candidate); ok {
			return v, true
		}
	}
	return "", false
}

// resolveRow fills every placeholder. A non-empty message means the row is excluded.
func resolveRow(
	row *RowContext,
	phone string,
	template *models.MessageTemplate,
	slots []placeholder,
	mappings map[models.MappingKey]*models.TemplateVariableMapping,
	resolvers map[models.SourceType]ValueResolver,
	issues *issueLog,
) (*resolvedRow, string) {
	r := &resolvedRow{
		row:          row,
		phone:        phone,
		headerParams: []string{},
		params:       make([]string, template.BodyParamCount),
	}
	urlValues := make(map[int]string)

	for _, p := range slots {
		m := mappings[p.key]
		resolver, ok := resolvers[m.SourceType]
		if !ok {
			return nil, fmt.Sprintf("%s: no resolver for source type %q", p.label(), m.SourceType)
		}
		value, ok, err := resolver.Resolve(m, row)
		if err != nil {
			return nil, fmt.Sprintf("%s: %v", p.label(), err)
		}
		if !ok || value == "" {
			if m.Required {
				return nil, fmt.Sprintf("%s: missing required value", p.label())
			}
			value = m.DefaultValue
			issues.warn("row %d: %s missing, using default %q", row.RowNumber, p.label(), value)
		}

		switch p.key.Component.Kind {
		case models.ComponentHeader:
			r.headerParams = append(r.headerParams, value)
		case models.ComponentBody:
			r.params[p.key.Index-1] = value
		case models.ComponentButtonURL:
			urlValues[p.key.Component.Button] = value
		}
	}

	r.buttonURLs = buildButtonURLs(template, urlValues)
	return r, ""
}

// buildButtonURLs returns URLs index-aligned with the first three template buttons
func buildButtonURLs(template *models.MessageTemplate, values map[int]string) []string {
	n := min(len(template.Buttons), models.MaxURLButtons)
	urls := make([]string, n)
	for i := 0; i < n; i++ {
		b := template.Buttons[i]
		if !strings.EqualFold(b.Type, models.ButtonTypeURL) {
			continue
		}
		if v, ok := values[i+1]; ok && b.IsDynamicURL() {
			urls[i] = strings.Replace(b.URL, models.URLPlaceholder, v, 1)
			continue
		}
		urls[i] = b.URL
	}
	return urls
}

func sampleOf(rows []*resolvedRow) []dto.MaterializedRecipientSample {
	n := min(len(rows), utils.MaterializeSampleSize)
	out := make([]dto.MaterializedRecipientSample, 0, n)
	for _, r := range rows[:n] {
		out = append(out, dto.MaterializedRecipientSample{
			Phone:          r.phone,
			HeaderParams:   r.headerParams,
			Params:         r.params,
			ButtonURLs:     r.buttonURLs,
			IdempotencyKey: r.key,
		})
	}
	return out
}

// persist writes the audience, its csv members and the recipients in one transaction
func (f *MaterializeFlowImpl) persist(
	ctx context.Context,
	campaign *models.Campaign,
	template *models.MessageTemplate,
	audienceName string,
	csvBatchID *uint,
	sourceType string,
	rows []*resolvedRow,
) (uint, error) {
	var audienceID uint
	err := f.tx.Do(ctx, func(txCtx context.Context) error {
		audience, err := f.audienceRepo.FindOrCreate(txCtx, &models.Audience{
			BusinessID: campaign.BusinessID,
			CampaignID: campaign.ID,
			Name:       audienceName,
			CsvBatchID: csvBatchID,
		})
		if err != nil {
			return err
		}
		audienceID = audience.ID

		memberIDs := make(map[string]uint)
		if sourceType == dto.RowSourceCsvBatch {
			members := make([]*models.AudienceMember, 0, len(rows))
			for _, r := range rows {
				name, _ := r.row.Column("name")
				members = append(members, &models.AudienceMember{
					AudienceID: audience.ID,
					Phone:      r.phone,
					Name:       name,
					Values:     r.row.Values,
				})
			}
			if err := f.audienceRepo.UpsertMembers(txCtx, members); err != nil {
				return err
			}
			for _, m := range members {
				if m.ID != 0 {
					memberIDs[m.Phone] = m.ID
				}
			}
		}

		stamp := f.now()
		recipients := make([]*models.MaterializedRecipient, 0, len(rows))
		for _, r := range rows {
			rec := &models.MaterializedRecipient{
				BusinessID:           campaign.BusinessID,
				CampaignID:           campaign.ID,
				TemplateID:           template.ID,
				AudienceID:           &audience.ID,
				Phone:                r.phone,
				ResolvedHeaderParams: r.headerParams,
				ResolvedParams:       r.params,
				ResolvedButtonURLs:   r.buttonURLs,
				IdempotencyKey:       r.key,
				MaterializedAt:       stamp,
				Status:               models.RecipientStatusPending,
			}
			switch {
			case r.row.Contact != nil:
				rec.ContactID = &r.row.Contact.ID
			case r.row.MemberID != nil:
				rec.AudienceMemberID = r.row.MemberID
			default:
				if id, ok := memberIDs[r.phone]; ok {
					rec.AudienceMemberID = utils.ToPtr(id)
				}
			}
			recipients = append(recipients, rec)
		}

		return f.recipientRepo.UpsertByIdempotencyKey(txCtx, recipients)
	})
	return audienceID, err
}
