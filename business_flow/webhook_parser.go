package businessflow

import (
	"bytes"
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/amirphl/Yamata-WABA/models"
	"github.com/amirphl/Yamata-WABA/utils"
)

var (
	// messageIDKeys are tried on the object holding the pricing data
	messageIDKeys = []string{"id", "message_id", "messageId", "wamid", "provider_message_id"}
	// parentMessageIDKeys are tried on enclosing objects, where a bare "id" names something else
	parentMessageIDKeys = []string{"message_id", "messageId", "wamid", "provider_message_id"}
	conversationIDKeys  = []string{"conversation_id", "conversationId"}
	categoryKeys        = []string{"category", "pricing_category", "conversation_category"}
	chargeableKeys      = []string{"billable", "chargeable"}
	amountKeys          = []string{"amount", "price"}
	currencyKeys        = []string{"currency", "price_currency"}
)

// ParsedBillingEvent is one ledger candidate extracted from a provider payload
type ParsedBillingEvent struct {
	EventType            string
	ProviderMessageID    *string
	ConversationID       *string
	ConversationCategory *string
	ConversationExpireAt *time.Time
	Chargeable           *bool
	PriceAmount          *float64
	PriceCurrency        *string
	OccurredAt           time.Time
	Raw                  json.RawMessage
}

// HasBilling reports whether the event carries anything to project onto a message log
func (e *ParsedBillingEvent) HasBilling() bool {
	return e.ConversationID != nil || e.ConversationCategory != nil ||
		e.Chargeable != nil || e.PriceAmount != nil || e.PriceCurrency != nil
}

// jsonNode wraps a decoded value with a link to its enclosing object
type jsonNode struct {
	value  any
	parent *jsonNode
}

func (n *jsonNode) object() map[string]any {
	m, _ := n.value.(map[string]any)
	return m
}

// ParseWebhookPayload never fails: unrecognized bodies yield one catch-all event
func ParseWebhookPayload(body []byte, now time.Time) []ParsedBillingEvent {
	return parsePayload(body, now, models.BillingEventUnknownWebhook)
}

// ParseSendResponse extracts message ids from a synchronous send response
func ParseSendResponse(body []byte, now time.Time) []ParsedBillingEvent {
	root, err := decodeJSON(body)
	if err != nil {
		return []ParsedBillingEvent{catchAll(body, now, models.BillingEventSendResponse)}
	}

	var events []ParsedBillingEvent
	if m, ok := root.(map[string]any); ok {
		for _, item := range asSlice(m["messages"]) {
			msg, ok := item.(map[string]any)
			if !ok {
				continue
			}
			id := stringField(msg, "id")
			if id == nil {
				continue
			}
			events = append(events, ParsedBillingEvent{
				EventType:         models.BillingEventSendResponse,
				ProviderMessageID: id,
				OccurredAt:        now,
				Raw:               rawOf(msg),
			})
		}
	}
	events = append(events, parseTree(root, now)...)
	if len(events) == 0 {
		return []ParsedBillingEvent{catchAll(body, now, models.BillingEventSendResponse)}
	}
	return events
}

func parsePayload(body []byte, now time.Time, fallback string) []ParsedBillingEvent {
	root, err := decodeJSON(body)
	if err != nil {
		return []ParsedBillingEvent{catchAll(body, now, fallback)}
	}

	events := parseNested(root, now)
	if len(events) == 0 {
		events = parseTree(root, now)
	}
	if len(events) == 0 {
		return []ParsedBillingEvent{catchAll(body, now, fallback)}
	}
	return events
}

// parseNested reads entry[].changes[].value.statuses[]
func parseNested(root any, now time.Time) []ParsedBillingEvent {
	m, ok := root.(map[string]any)
	if !ok {
		return nil
	}

	var events []ParsedBillingEvent
	for _, entry := range asSlice(m["entry"]) {
		em, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		for _, change := range asSlice(em["changes"]) {
			cm, ok := change.(map[string]any)
			if !ok {
				continue
			}
			value, ok := cm["value"].(map[string]any)
			if !ok {
				continue
			}
			for _, status := range asSlice(value["statuses"]) {
				sm, ok := status.(map[string]any)
				if !ok {
					continue
				}
				events = append(events, statusEvents(sm, now)...)
			}
		}
	}
	return events
}

// statusEvents yields the status event and, when pricing is present, a pricing_update
func statusEvents(st map[string]any, now time.Time) []ParsedBillingEvent {
	base := ParsedBillingEvent{
		ProviderMessageID: stringField(st, "id"),
		OccurredAt:        timeField(st["timestamp"], now),
		Raw:               rawOf(st),
	}

	var originType *string
	if conv, ok := st["conversation"].(map[string]any); ok {
		base.ConversationID = stringField(conv, "id")
		if exp := timeField(conv["expiration_timestamp"], time.Time{}); !exp.IsZero() {
			base.ConversationExpireAt = &exp
		}
		if origin, ok := conv["origin"].(map[string]any); ok {
			originType = stringField(origin, "type")
		}
	}
	base.ConversationCategory = originType

	var events []ParsedBillingEvent
	if status := stringField(st, "status"); status != nil {
		e := base
		e.EventType = strings.ToLower(*status)
		events = append(events, e)
	}

	if pricing, ok := st["pricing"].(map[string]any); ok {
		e := base
		e.EventType = models.BillingEventPricingUpdate
		applyPricing(&e, pricing)
		if e.ConversationCategory == nil {
			e.ConversationCategory = originType
		}
		events = append(events, e)
	}
	return events
}

// parseTree walks arbitrary JSON for pricing objects and id-carrying status objects
func parseTree(root any, now time.Time) []ParsedBillingEvent {
	var events []ParsedBillingEvent
	var walk func(n *jsonNode)
	walk = func(n *jsonNode) {
		switch v := n.value.(type) {
		case map[string]any:
			events = append(events, treeEvents(n, now)...)
			keys := make([]string, 0, len(v))
			for k := range v {
				if k != "pricing" {
					keys = append(keys, k)
				}
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(&jsonNode{value: v[k], parent: n})
			}
		case []any:
			for _, child := range v {
				// arrays are transparent: elements link to the enclosing object
				walk(&jsonNode{value: child, parent: n})
			}
		}
	}
	walk(&jsonNode{value: root})
	return events
}

func treeEvents(n *jsonNode, now time.Time) []ParsedBillingEvent {
	m := n.object()
	pricing, hasPricing := m["pricing"].(map[string]any)
	if !hasPricing && hasAnyKey(m, chargeableKeys) {
		pricing, hasPricing = m, true
	}

	msgID := firstString(m, messageIDKeys)
	var events []ParsedBillingEvent

	if status := stringField(m, "status"); status != nil && msgID != nil && !hasPricing {
		e := ParsedBillingEvent{
			EventType:         strings.ToLower(*status),
			ProviderMessageID: msgID,
			ConversationID:    conversationOf(n),
			OccurredAt:        timeField(lookupUp(n, "timestamp"), now),
			Raw:               rawOf(m),
		}
		events = append(events, e)
	}

	if hasPricing {
		if msgID == nil {
			for p := n.parent; p != nil && msgID == nil; p = p.parent {
				msgID = firstString(p.object(), parentMessageIDKeys)
			}
		}
		e := ParsedBillingEvent{
			EventType:         models.BillingEventPricingUpdate,
			ProviderMessageID: msgID,
			ConversationID:    conversationOf(n),
			OccurredAt:        timeField(lookupUp(n, "timestamp"), now),
			Raw:               rawOf(m),
		}
		applyPricing(&e, pricing)
		if status := stringField(m, "status"); status != nil && m["pricing"] != nil {
			s := e
			s.EventType = strings.ToLower(*status)
			s.Chargeable, s.PriceAmount, s.PriceCurrency = nil, nil, nil
			events = append(events, s)
		}
		events = append(events, e)
	}
	return events
}

func applyPricing(e *ParsedBillingEvent, pricing map[string]any) {
	if c := firstString(pricing, categoryKeys); c != nil {
		e.ConversationCategory = c
	}
	for _, k := range chargeableKeys {
		if b := boolField(pricing[k]); b != nil {
			e.Chargeable = b
			break
		}
	}
	for _, k := range amountKeys {
		if f := numberField(pricing[k]); f != nil {
			e.PriceAmount = f
			break
		}
	}
	e.PriceCurrency = firstString(pricing, currencyKeys)
}

// conversationOf finds the conversation id on n or its ancestors
func conversationOf(n *jsonNode) *string {
	for p := n; p != nil; p = p.parent {
		m := p.object()
		if m == nil {
			continue
		}
		if id := firstString(m, conversationIDKeys); id != nil {
			return id
		}
		switch conv := m["conversation"].(type) {
		case map[string]any:
			if id := stringField(conv, "id"); id != nil {
				return id
			}
		case string:
			if conv != "" {
				return &conv
			}
		}
	}
	return nil
}

func lookupUp(n *jsonNode, key string) any {
	for p := n; p != nil; p = p.parent {
		if m := p.object(); m != nil {
			if v, ok := m[key]; ok {
				return v
			}
		}
	}
	return nil
}

func catchAll(body []byte, now time.Time, eventType string) ParsedBillingEvent {
	raw := json.RawMessage(bytes.TrimSpace(body))
	if !json.Valid(raw) {
		raw, _ = json.Marshal(map[string]string{"body": string(body)})
	}
	return ParsedBillingEvent{EventType: eventType, OccurredAt: now, Raw: raw}
}

func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}

func rawOf(v any) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage(`{}`)
	}
	return b
}

func asSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func hasAnyKey(m map[string]any, keys []string) bool {
	for _, k := range keys {
		if _, ok := m[k]; ok {
			return true
		}
	}
	return false
}

func firstString(m map[string]any, keys []string) *string {
	if m == nil {
		return nil
	}
	for _, k := range keys {
		if s := stringField(m, k); s != nil {
			return s
		}
	}
	return nil
}

// stringField returns a non-empty string or number as text
func stringField(m map[string]any, key string) *string {
	var s string
	switch v := m[key].(type) {
	case string:
		s = strings.TrimSpace(v)
	case json.Number:
		s = v.String()
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

func boolField(v any) *bool {
	switch b := v.(type) {
	case bool:
		return &b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return &parsed
		}
	}
	return nil
}

func numberField(v any) *float64 {
	var s string
	switch n := v.(type) {
	case json.Number:
		s = n.String()
	case string:
		s = strings.TrimSpace(n)
	default:
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

// timeField accepts unix seconds or RFC3339 and falls back to def
func timeField(v any, def time.Time) time.Time {
	var s string
	switch t := v.(type) {
	case json.Number:
		s = t.String()
	case string:
		s = strings.TrimSpace(t)
	default:
		return def
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return utils.FromUnix(sec)
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts.UTC()
	}
	return def
}
