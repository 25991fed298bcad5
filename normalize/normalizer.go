package normalize

import (
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/goliatone/go-marketsync/core"
)

// rootNameKey exposes the XML root element name in the parsed tree so
// extractors can treat it as the event type, the way eBay Trading
// notifications name their payloads.
const rootNameKey = "_root"

// Normalizer parses raw webhook bytes into the canonical event envelope.
// The payload becomes a loose map tree; TypePaths is the ordered candidate
// list probed for the event type.
type Normalizer struct {
	Marketplace core.Marketplace
	TypePaths   []string
	// XMLRootAsType uses the document root element name as the event type
	// when none of the TypePaths match.
	XMLRootAsType bool
}

func (n Normalizer) Parse(req core.WebhookRequest) (core.Event, error) {
	body := req.Body
	if len(body) == 0 {
		return core.Event{}, core.NewMalformedPayloadError(
			"webhook body is empty", nil,
			map[string]any{"marketplace": string(n.Marketplace)},
		)
	}

	var (
		data map[string]any
		err  error
	)
	if isXML(req.ContentType, body) {
		data, err = parseXMLTree(body)
	} else {
		err = json.Unmarshal(body, &data)
	}
	if err != nil {
		return core.Event{}, core.NewMalformedPayloadError(
			"webhook payload parse failed", err,
			map[string]any{"marketplace": string(n.Marketplace), "content_type": req.ContentType},
		)
	}

	eventType := ExtractString(data, n.TypePaths...)
	if eventType == "" && n.XMLRootAsType {
		eventType = ExtractString(data, rootNameKey)
	}
	if strings.TrimSpace(eventType) == "" {
		return core.Event{}, core.NewMalformedPayloadError(
			"event type could not be located in payload", nil,
			map[string]any{"marketplace": string(n.Marketplace), "paths": n.TypePaths},
		)
	}

	receivedAt := req.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}
	return core.Event{
		Marketplace: n.Marketplace,
		Type:        strings.TrimSpace(eventType),
		Data:        data,
		ReceivedAt:  receivedAt,
	}, nil
}

func isXML(contentType string, body []byte) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if strings.Contains(ct, "xml") {
		return true
	}
	if strings.Contains(ct, "json") {
		return false
	}
	trimmed := strings.TrimLeftFunc(string(body), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\r' || r == '\n'
	})
	return strings.HasPrefix(trimmed, "<")
}
