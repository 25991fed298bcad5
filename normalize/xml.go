package normalize

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// parseXMLTree walks arbitrary XML into a nested map, the same shape JSON
// payloads decode into. Repeated sibling elements collapse into a slice;
// leaf elements become their character data. The root element name is kept
// under rootNameKey.
func parseXMLTree(body []byte) (map[string]any, error) {
	decoder := xml.NewDecoder(bytes.NewReader(body))
	for {
		token, err := decoder.Token()
		if err == io.EOF {
			return nil, fmt.Errorf("normalize: xml document has no root element")
		}
		if err != nil {
			return nil, err
		}
		start, ok := token.(xml.StartElement)
		if !ok {
			continue
		}
		value, err := decodeElement(decoder, start)
		if err != nil {
			return nil, err
		}
		root, ok := value.(map[string]any)
		if !ok {
			root = map[string]any{"value": value}
		}
		root[rootNameKey] = start.Name.Local
		return root, nil
	}
}

func decodeElement(decoder *xml.Decoder, start xml.StartElement) (any, error) {
	children := map[string]any{}
	var text strings.Builder

	for _, attr := range start.Attr {
		children["@"+attr.Name.Local] = attr.Value
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch tok := token.(type) {
		case xml.StartElement:
			child, err := decodeElement(decoder, tok)
			if err != nil {
				return nil, err
			}
			appendChild(children, tok.Name.Local, child)
		case xml.CharData:
			text.Write(tok)
		case xml.EndElement:
			if len(children) == 0 {
				return strings.TrimSpace(text.String()), nil
			}
			if trimmed := strings.TrimSpace(text.String()); trimmed != "" {
				children["#text"] = trimmed
			}
			return children, nil
		}
	}
}

func appendChild(parent map[string]any, name string, value any) {
	existing, ok := parent[name]
	if !ok {
		parent[name] = value
		return
	}
	if list, ok := existing.([]any); ok {
		parent[name] = append(list, value)
		return
	}
	parent[name] = []any{existing, value}
}
