package connect

import (
	"strconv"
	"strings"

	"github.com/clbanning/mxj/v2"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/models"
)

// Event is what the service reads from one push notification.
type Event struct {
	EnvelopeID string
	Status     string
	Subject    string
	// HostKey is the value of the envelope's hostKey custom field.
	HostKey    string
	Recipients []models.RecipientStatus
}

// ParseEvent extracts an Event from a Connect XML payload. Elements are
// matched by local name so namespace prefixes do not matter.
func ParseEvent(data []byte, hostKeyField string) (*Event, error) {
	doc, err := mxj.NewMapXml(data)
	if err != nil {
		return nil, errors.ValidationError("payload is not well-formed XML").WithContext("cause", err.Error())
	}

	envelope := findFirst(map[string]interface{}(doc), "EnvelopeStatus")
	if envelope == nil {
		return &Event{}, nil
	}

	evt := &Event{
		EnvelopeID: unquote(childText(envelope, "EnvelopeID")),
		Status:     models.NormalizeStatus(childText(envelope, "Status")),
		Subject:    childText(envelope, "Subject"),
		HostKey:    customField(envelope, hostKeyField),
	}

	for _, statuses := range findAll(envelope, "RecipientStatuses") {
		for _, recipient := range children(statuses, "RecipientStatus") {
			order, _ := strconv.Atoi(childText(recipient, "RoutingOrder"))
			evt.Recipients = append(evt.Recipients, models.RecipientStatus{
				Email:        childText(recipient, "Email"),
				Name:         childText(recipient, "UserName"),
				Status:       models.NormalizeStatus(childText(recipient, "Status")),
				RoutingOrder: order,
			})
		}
	}
	return evt, nil
}

// customField returns the value of the named CustomField or TextCustomField.
func customField(envelope interface{}, name string) string {
	for _, fields := range findAll(envelope, "CustomFields") {
		for _, tag := range []string{"CustomField", "TextCustomField"} {
			for _, field := range children(fields, tag) {
				if strings.TrimSpace(childText(field, "Name")) != name {
					continue
				}
				if value := childText(field, "Value"); value != "" {
					return value
				}
			}
		}
	}
	return ""
}

func localName(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// children returns the direct child elements of node named name. A
// repeated element decodes to a slice and is flattened.
func children(node interface{}, name string) []interface{} {
	m, ok := node.(map[string]interface{})
	if !ok {
		return nil
	}
	var out []interface{}
	for key, value := range m {
		if localName(key) != name {
			continue
		}
		if list, ok := value.([]interface{}); ok {
			out = append(out, list...)
		} else {
			out = append(out, value)
		}
	}
	return out
}

// findAll returns every element named name below node, depth first.
func findAll(node interface{}, name string) []interface{} {
	var out []interface{}
	var walk func(interface{})
	walk = func(n interface{}) {
		switch v := n.(type) {
		case map[string]interface{}:
			for key, child := range v {
				if strings.HasPrefix(key, "-") || key == "#text" {
					continue
				}
				if localName(key) == name {
					if list, ok := child.([]interface{}); ok {
						out = append(out, list...)
					} else {
						out = append(out, child)
					}
					continue
				}
				walk(child)
			}
		case []interface{}:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(node)
	return out
}

func findFirst(node interface{}, name string) interface{} {
	all := findAll(node, name)
	if len(all) == 0 {
		return nil
	}
	return all[0]
}

// childText returns the trimmed text of the first child named name.
func childText(node interface{}, name string) string {
	kids := children(node, name)
	if len(kids) == 0 {
		return ""
	}
	return text(kids[0])
}

func text(v interface{}) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case map[string]interface{}:
		if s, ok := t["#text"]; ok {
			return text(s)
		}
	case nil:
		return ""
	default:
		if s, ok := t.(interface{ String() string }); ok {
			return strings.TrimSpace(s.String())
		}
	}
	return ""
}

func unquote(s string) string {
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
