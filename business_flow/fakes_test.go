package businessflow

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/repository"
	"github.com/google/uuid"
)

// memStore backs the in-memory repositories used by the flow tests
type memStore struct {
	mu     sync.Mutex
	nextID uint
	clock  time.Time

	campaigns  map[uint]*models.Campaign
	templates  map[uint]*models.MessageTemplate
	contacts   []*models.Contact
	batches    map[uint]*models.CsvBatch
	batchRows  map[uint][]*models.CsvBatchRow
	audiences  []*models.Audience
	members    []*models.AudienceMember
	mappings   []*models.TemplateVariableMapping
	recipients []*models.MaterializedRecipient
	jobs       []*models.OutboundCampaignJob
	events     []*models.ProviderBillingEvent
	logs       []*models.MessageLog
	audits     []*models.AuditLog
}

func newMemStore() *memStore {
	return &memStore{
		clock:     time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		campaigns: make(map[uint]*models.Campaign),
		templates: make(map[uint]*models.MessageTemplate),
		batches:   make(map[uint]*models.CsvBatch),
		batchRows: make(map[uint][]*models.CsvBatchRow),
	}
}

func (s *memStore) id() uint {
	s.nextID++
	return s.nextID
}

func (s *memStore) auditActions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.audits))
	for _, a := range s.audits {
		out = append(out, a.Action)
	}
	return out
}

func (s *memStore) recipientByID(id uint) *models.MaterializedRecipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.recipients {
		if r.ID == id {
			cp := *r
			return &cp
		}
	}
	return nil
}

func (s *memStore) jobByID(id uint) *models.OutboundCampaignJob {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.ID == id {
			cp := *j
			return &cp
		}
	}
	return nil
}

func (s *memStore) logFor(recipientID uint) *models.MessageLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.logs {
		if l.RecipientID == recipientID {
			cp := *l
			return &cp
		}
	}
	return nil
}

type fakeTx struct{}

func (fakeTx) Do(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

// campaigns and templates

type fakeCampaignRepo struct{ s *memStore }

func (r fakeCampaignRepo) ByID(_ context.Context, id uint) (*models.Campaign, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.campaigns[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r fakeCampaignRepo) LockByID(ctx context.Context, id uint) (*models.Campaign, error) {
	return r.ByID(ctx, id)
}

type fakeTemplateRepo struct{ s *memStore }

func (r fakeTemplateRepo) ByID(_ context.Context, id uint) (*models.MessageTemplate, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.templates[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

// row sources

type fakeContactRepo struct{ s *memStore }

func (r fakeContactRepo) ListForBusiness(_ context.Context, businessID uint, ids []uint, limit int) ([]*models.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Contact
	for _, c := range r.s.contacts {
		if c.BusinessID != businessID {
			continue
		}
		if len(ids) > 0 && !slices.Contains(ids, c.ID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeCsvBatchRepo struct{ s *memStore }

func (r fakeCsvBatchRepo) ByID(_ context.Context, id uint) (*models.CsvBatch, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.batches[id], nil
}

func (r fakeCsvBatchRepo) Rows(_ context.Context, batchID uint, limit int) ([]*models.CsvBatchRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rows := r.s.batchRows[batchID]
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

type fakeAudienceRepo struct{ s *memStore }

func (r fakeAudienceRepo) ByID(_ context.Context, id uint) (*models.Audience, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.audiences {
		if a.ID == id {
			return a, nil
		}
	}
	return nil, nil
}

func (r fakeAudienceRepo) FindOrCreate(_ context.Context, audience *models.Audience) (*models.Audience, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.audiences {
		if a.CampaignID == audience.CampaignID && a.Name == audience.Name {
			return a, nil
		}
	}
	audience.ID = r.s.id()
	audience.UUID = uuid.New()
	r.s.audiences = append(r.s.audiences, audience)
	return audience, nil
}

func (r fakeAudienceRepo) Members(_ context.Context, audienceID uint, limit int) ([]*models.AudienceMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.AudienceMember
	for _, m := range r.s.members {
		if m.AudienceID == audienceID {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeAudienceRepo) UpsertMembers(_ context.Context, members []*models.AudienceMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range members {
		found := false
		for _, existing := range r.s.members {
			if existing.AudienceID == m.AudienceID && existing.Phone == m.Phone {
				existing.Name, existing.Values = m.Name, m.Values
				m.ID = existing.ID
				found = true
				break
			}
		}
		if !found {
			m.ID = r.s.id()
			cp := *m
			r.s.members = append(r.s.members, &cp)
		}
	}
	return nil
}

// mappings

type fakeMappingRepo struct{ s *memStore }

func (r fakeMappingRepo) ListByCampaign(_ context.Context, campaignID uint) ([]*models.TemplateVariableMapping, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.TemplateVariableMapping
	for _, m := range r.s.mappings {
		if m.CampaignID == campaignID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sortMappings(out)
	return out, nil
}

func (r fakeMappingRepo) Save(_ context.Context, m *models.TemplateVariableMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m.ID = r.s.id()
	m.CreatedAt, m.UpdatedAt = r.s.clock, r.s.clock
	cp := *m
	r.s.mappings = append(r.s.mappings, &cp)
	return nil
}

func (r fakeMappingRepo) UpdateBinding(_ context.Context, m *models.TemplateVariableMapping) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, existing := range r.s.mappings {
		if existing.ID == m.ID {
			m.UpdatedAt = r.s.clock.Add(time.Minute)
			cp := *m
			r.s.mappings[i] = &cp
			return nil
		}
	}
	return errors.New("mapping not found")
}

func (r fakeMappingRepo) DeleteByIDs(_ context.Context, ids []uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.mappings = slices.DeleteFunc(r.s.mappings, func(m *models.TemplateVariableMapping) bool {
		return slices.Contains(ids, m.ID)
	})
	return nil
}

// recipients

type fakeRecipientRepo struct{ s *memStore }

func (r fakeRecipientRepo) ByID(_ context.Context, id uint) (*models.MaterializedRecipient, error) {
	return r.s.recipientByID(id), nil
}

func (r fakeRecipientRepo) UpsertByIdempotencyKey(_ context.Context, rows []*models.MaterializedRecipient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, row := range rows {
		found := false
		for _, existing := range r.s.recipients {
			if existing.IdempotencyKey == row.IdempotencyKey {
				existing.AudienceID = row.AudienceID
				existing.MaterializedAt = row.MaterializedAt
				row.ID = existing.ID
				found = true
				break
			}
		}
		if !found {
			row.ID = r.s.id()
			cp := *row
			r.s.recipients = append(r.s.recipients, &cp)
		}
	}
	return nil
}

func recipientMatches(rec *models.MaterializedRecipient, f models.MaterializedRecipientFilter) bool {
	switch {
	case f.BusinessID != nil && rec.BusinessID != *f.BusinessID:
		return false
	case f.CampaignID != nil && rec.CampaignID != *f.CampaignID:
		return false
	case f.AudienceID != nil && (rec.AudienceID == nil || *rec.AudienceID != *f.AudienceID):
		return false
	case f.Status != nil && rec.Status != *f.Status:
		return false
	case f.AfterID != nil && rec.ID <= *f.AfterID:
		return false
	}
	return true
}

func (r fakeRecipientRepo) ListPage(_ context.Context, filter models.MaterializedRecipientFilter, limit int) ([]*models.MaterializedRecipient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.MaterializedRecipient
	for _, rec := range r.s.recipients {
		if recipientMatches(rec, filter) {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeRecipientRepo) Count(_ context.Context, filter models.MaterializedRecipientFilter) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, rec := range r.s.recipients {
		if recipientMatches(rec, filter) {
			n++
		}
	}
	return n, nil
}

func (r fakeRecipientRepo) UpdateStatus(_ context.Context, id uint, status models.RecipientStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rec := range r.s.recipients {
		if rec.ID == id {
			rec.Status = status
			return nil
		}
	}
	return nil
}

// jobs

type fakeJobRepo struct{ s *memStore }

func (r fakeJobRepo) Save(_ context.Context, job *models.OutboundCampaignJob) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	job.ID = r.s.id()
	if job.UUID == uuid.Nil {
		job.UUID = uuid.New()
	}
	job.CreatedAt, job.UpdatedAt = r.s.clock, r.s.clock
	cp := *job
	r.s.jobs = append(r.s.jobs, &cp)
	return nil
}

func (r fakeJobRepo) ByID(_ context.Context, id uint) (*models.OutboundCampaignJob, error) {
	return r.s.jobByID(id), nil
}

func (r fakeJobRepo) ByUUID(_ context.Context, id uuid.UUID) (*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.UUID == id {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeJobRepo) ActiveByCampaign(_ context.Context, campaignID uint) (*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.jobs) - 1; i >= 0; i-- {
		j := r.s.jobs[i]
		if j.CampaignID == campaignID && (j.Status == models.OutboundJobStatusQueued || j.Status == models.OutboundJobStatusRunning) {
			cp := *j
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeJobRepo) ListByCampaign(_ context.Context, campaignID uint) ([]*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.OutboundCampaignJob
	for i := len(r.s.jobs) - 1; i >= 0; i-- {
		if j := r.s.jobs[i]; j.CampaignID == campaignID {
			cp := *j
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r fakeJobRepo) claim(j *models.OutboundCampaignJob, workerID string, now, leaseUntil time.Time) *models.OutboundCampaignJob {
	j.Status = models.OutboundJobStatusRunning
	j.Attempt++
	j.LockedBy = &workerID
	j.LockedUntil = &leaseUntil
	if j.StartedAt == nil {
		j.StartedAt = &now
	}
	cp := *j
	return &cp
}

func (r fakeJobRepo) ClaimNext(_ context.Context, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var best *models.OutboundCampaignJob
	for _, j := range r.s.jobs {
		if j.Status != models.OutboundJobStatusQueued || j.NextAttemptAt.After(now) {
			continue
		}
		if best == nil || j.NextAttemptAt.Before(best.NextAttemptAt) {
			best = j
		}
	}
	if best == nil {
		return nil, nil
	}
	return r.claim(best, workerID, now, leaseUntil), nil
}

func (r fakeJobRepo) ClaimByID(_ context.Context, id uint, workerID string, now, leaseUntil time.Time) (*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.ID == id && j.Status == models.OutboundJobStatusQueued && !j.NextAttemptAt.After(now) {
			return r.claim(j, workerID, now, leaseUntil), nil
		}
	}
	return nil, nil
}

func (r fakeJobRepo) ExtendLease(_ context.Context, id uint, workerID string, leaseUntil time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.ID == id && j.Status == models.OutboundJobStatusRunning && j.LockedBy != nil && *j.LockedBy == workerID {
			j.LockedUntil = &leaseUntil
			return true, nil
		}
	}
	return false, nil
}

func (r fakeJobRepo) ListExpiredLeases(_ context.Context, now time.Time, limit int) ([]*models.OutboundCampaignJob, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.OutboundCampaignJob
	for _, j := range r.s.jobs {
		if j.Status == models.OutboundJobStatusRunning && j.LockedUntil != nil && j.LockedUntil.Before(now) {
			cp := *j
			out = append(out, &cp)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r fakeJobRepo) Transition(_ context.Context, id uint, t repository.OutboundJobTransition) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, j := range r.s.jobs {
		if j.ID != id {
			continue
		}
		if !slices.Contains(t.From, j.Status) || (t.Attempt != nil && *t.Attempt != j.Attempt) {
			return false, nil
		}
		j.Status = t.To
		if t.NextAttemptAt != nil {
			j.NextAttemptAt = *t.NextAttemptAt
		}
		if t.LastError != nil {
			j.LastError = t.LastError
		}
		if t.ClearLease {
			j.LockedBy, j.LockedUntil = nil, nil
		}
		if t.FinishedAt != nil {
			j.FinishedAt = t.FinishedAt
		}
		if t.CanceledAt != nil {
			j.CanceledAt = t.CanceledAt
		}
		return true, nil
	}
	return false, nil
}

// billing ledger

type fakeEventRepo struct{ s *memStore }

func sameEvent(e *models.ProviderBillingEvent, businessID uint, provider, eventType string, messageID, conversationID *string) bool {
	if e.BusinessID != businessID || e.Provider != provider || e.EventType != eventType {
		return false
	}
	switch {
	case messageID != nil:
		return e.ProviderMessageID != nil && *e.ProviderMessageID == *messageID
	case conversationID != nil:
		return e.ProviderMessageID == nil && e.ConversationID != nil && *e.ConversationID == *conversationID
	default:
		return false
	}
}

func (r fakeEventRepo) Exists(_ context.Context, businessID uint, provider, eventType string, messageID, conversationID *string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if sameEvent(e, businessID, provider, eventType, messageID, conversationID) {
			return true, nil
		}
	}
	return false, nil
}

func (r fakeEventRepo) Insert(_ context.Context, event *models.ProviderBillingEvent) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.events {
		if sameEvent(e, event.BusinessID, event.Provider, event.EventType, event.ProviderMessageID, event.ConversationID) {
			return false, nil
		}
	}
	event.ID = r.s.id()
	r.s.events = append(r.s.events, event)
	return true, nil
}

func (r fakeEventRepo) ListByFilter(_ context.Context, f models.ProviderBillingEventFilter) ([]*models.ProviderBillingEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ProviderBillingEvent
	for _, e := range r.s.events {
		switch {
		case f.BusinessID != nil && e.BusinessID != *f.BusinessID:
		case f.Provider != nil && e.Provider != *f.Provider:
		case f.EventType != nil && e.EventType != *f.EventType:
		case f.OccurredAfter != nil && e.OccurredAt.Before(*f.OccurredAfter):
		case f.OccurredBefore != nil && !e.OccurredAt.Before(*f.OccurredBefore):
		default:
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredAt.Before(out[j].OccurredAt) })
	return out, nil
}

// message logs

type fakeLogRepo struct{ s *memStore }

func (r fakeLogRepo) find(id uint) *models.MessageLog {
	for _, l := range r.s.logs {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (r fakeLogRepo) Save(_ context.Context, log *models.MessageLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.RecipientID == log.RecipientID {
			return errors.New("duplicate message log for recipient")
		}
	}
	log.ID = r.s.id()
	log.CreatedAt = r.s.clock
	cp := *log
	r.s.logs = append(r.s.logs, &cp)
	return nil
}

func (r fakeLogRepo) ByRecipientID(_ context.Context, recipientID uint) (*models.MessageLog, error) {
	return r.s.logFor(recipientID), nil
}

func (r fakeLogRepo) ByProviderMessageID(_ context.Context, businessID uint, id string) (*models.MessageLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.BusinessID == businessID && l.ProviderMessageID != nil && *l.ProviderMessageID == id {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeLogRepo) LatestByConversationID(_ context.Context, businessID uint, conversationID string) (*models.MessageLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := len(r.s.logs) - 1; i >= 0; i-- {
		l := r.s.logs[i]
		if l.BusinessID == businessID && l.ConversationID != nil && *l.ConversationID == conversationID {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (r fakeLogRepo) CreateSending(_ context.Context, log *models.MessageLog) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.logs {
		if l.RecipientID == log.RecipientID {
			return false, nil
		}
	}
	log.ID = r.s.id()
	log.CreatedAt = r.s.clock
	cp := *log
	r.s.logs = append(r.s.logs, &cp)
	return true, nil
}

func (r fakeLogRepo) ListUnresolved(_ context.Context, campaignID, ownJobID uint, now time.Time) ([]*models.MessageLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	live := func(jobID uint) bool {
		for _, j := range r.s.jobs {
			if j.ID == jobID {
				return j.Status == models.OutboundJobStatusRunning && j.LockedUntil != nil && j.LockedUntil.After(now)
			}
		}
		return false
	}
	var out []*models.MessageLog
	for _, l := range r.s.logs {
		if l.CampaignID != campaignID || l.Status != models.MessageLogStatusSending {
			continue
		}
		if l.JobID != nil && *l.JobID != ownJobID && live(*l.JobID) {
			continue
		}
		cp := *l
		out = append(out, &cp)
	}
	return out, nil
}

func (r fakeLogRepo) MarkSent(_ context.Context, id uint, providerMessageID string, sentAt time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l := r.find(id)
	if l == nil || l.ProviderMessageID != nil {
		return false, nil
	}
	unknown := l.Status == models.MessageLogStatusFailed && l.Error != nil && strings.HasPrefix(*l.Error, models.UnknownOutcomeError)
	if l.Status != models.MessageLogStatusSending && !unknown {
		return false, nil
	}
	l.Status = models.MessageLogStatusSent
	l.ProviderMessageID = &providerMessageID
	l.SentAt = &sentAt
	l.Error = nil
	return true, nil
}

func (r fakeLogRepo) MarkFailed(_ context.Context, id uint, reason string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l := r.find(id); l != nil && l.Status == models.MessageLogStatusSending {
		l.Status = models.MessageLogStatusFailed
		l.Error = &reason
		return true, nil
	}
	return false, nil
}

func (r fakeLogRepo) DeleteSending(_ context.Context, id uint) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.logs = slices.DeleteFunc(r.s.logs, func(l *models.MessageLog) bool {
		return l.ID == id && l.Status == models.MessageLogStatusSending
	})
	return nil
}

func (r fakeLogRepo) AdvanceStatus(_ context.Context, id uint, from, to models.MessageLogStatus) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l := r.find(id); l != nil && l.Status == from {
		l.Status = to
		return true, nil
	}
	return false, nil
}

func (r fakeLogRepo) ApplyBilling(_ context.Context, id uint, p repository.BillingProjection) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l := r.find(id)
	if l == nil || (l.BillingEventAt != nil && l.BillingEventAt.After(p.EventAt)) {
		return false, nil
	}
	at := p.EventAt
	l.BillingEventAt = &at
	if p.ConversationID != nil {
		l.ConversationID = p.ConversationID
	}
	if p.ConversationCategory != nil {
		l.ConversationCategory = p.ConversationCategory
	}
	if p.ConversationStartedAt != nil {
		l.ConversationStartedAt = p.ConversationStartedAt
	}
	if p.Chargeable != nil {
		l.Chargeable = p.Chargeable
	}
	if p.PriceAmount != nil {
		l.PriceAmount = p.PriceAmount
	}
	if p.PriceCurrency != nil {
		l.PriceCurrency = p.PriceCurrency
	}
	return true, nil
}

func (r fakeLogRepo) CountByRange(_ context.Context, businessID uint, from, to time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, l := range r.s.logs {
		if l.BusinessID == businessID && !l.CreatedAt.Before(from) && l.CreatedAt.Before(to) {
			n++
		}
	}
	return n, nil
}

type fakeAuditRepo struct{ s *memStore }

func (r fakeAuditRepo) Save(_ context.Context, log *models.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = r.s.id()
	r.s.audits = append(r.s.audits, log)
	return nil
}

func (r fakeAuditRepo) ListByBusiness(_ context.Context, businessID uint, action string, limit int) ([]*models.AuditLog, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.AuditLog
	for i := len(r.s.audits) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		a := r.s.audits[i]
		if a.BusinessID == nil || *a.BusinessID != businessID || (action != "" && a.Action != action) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// compile-time checks
var (
	_ repository.Transactor                        = fakeTx{}
	_ repository.CampaignRepository                = fakeCampaignRepo{}
	_ repository.MessageTemplateRepository         = fakeTemplateRepo{}
	_ repository.ContactRepository                 = fakeContactRepo{}
	_ repository.CsvBatchRepository                = fakeCsvBatchRepo{}
	_ repository.AudienceRepository                = fakeAudienceRepo{}
	_ repository.TemplateVariableMappingRepository = fakeMappingRepo{}
	_ repository.MaterializedRecipientRepository   = fakeRecipientRepo{}
	_ repository.OutboundCampaignJobRepository     = fakeJobRepo{}
	_ repository.ProviderBillingEventRepository    = fakeEventRepo{}
	_ repository.MessageLogRepository              = fakeLogRepo{}
	_ repository.AuditLogRepository                = fakeAuditRepo{}
)

// seedCampaign stores a campaign of business 1 bound to template
func (s *memStore) seedCampaign(template *models.MessageTemplate) *models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	if template.ID == 0 {
		template.ID = s.id()
	}
	if template.BusinessID == 0 {
		template.BusinessID = 1
	}
	s.templates[template.ID] = template
	c := &models.Campaign{
		ID:         s.id(),
		UUID:       uuid.New(),
		BusinessID: template.BusinessID,
		Name:       "spring sale",
		TemplateID: &template.ID,
		Status:     models.CampaignStatusReady,
	}
	s.campaigns[c.ID] = c
	return c
}

func (s *memStore) seedCsv(businessID uint, rows ...map[string]string) *models.CsvBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := &models.CsvBatch{ID: s.id(), BusinessID: businessID, FileName: "upload.csv", RowCount: len(rows)}
	s.batches[b.ID] = b
	for i, values := range rows {
		s.batchRows[b.ID] = append(s.batchRows[b.ID], &models.CsvBatchRow{
			ID:         s.id(),
			CsvBatchID: b.ID,
			RowNumber:  i + 1,
			Values:     values,
		})
	}
	return b
}

func (s *memStore) seedRecipients(campaign *models.Campaign, phones ...string) []*models.MaterializedRecipient {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.MaterializedRecipient
	for _, phone := range phones {
		rec := &models.MaterializedRecipient{
			ID:             s.id(),
			BusinessID:     campaign.BusinessID,
			CampaignID:     campaign.ID,
			TemplateID:     *campaign.TemplateID,
			Phone:          phone,
			ResolvedParams: []string{"Sara"},
			IdempotencyKey: phone,
			MaterializedAt: s.clock,
			Status:         models.RecipientStatusPending,
		}
		s.recipients = append(s.recipients, rec)
		out = append(out, rec)
	}
	return out
}
