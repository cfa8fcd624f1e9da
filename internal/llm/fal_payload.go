package llm

import (
	"bytes"
	"encoding/json"
	"strings"
)

// falImagePayload accepts either a bare URL string or an image object.
type falImagePayload struct {
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
}

func (p *falImagePayload) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '"' {
		return json.Unmarshal(data, &p.URL)
	}

	var payload map[string]any
	if err := json.Unmarshal(data, &payload); err != nil {
		return err
	}
	for _, key := range []string{"url", "image_url", "uri", "signed_url"} {
		if v, ok := payload[key].(string); ok && strings.TrimSpace(v) != "" {
			p.URL = v
			break
		}
	}
	if v, ok := payload["content_type"].(string); ok {
		p.ContentType = v
	}
	return nil
}

// falAPIError accepts "error": "text", "error": {"message": ...} and
// FastAPI-style "detail" lists.
type falAPIError struct {
	Message string
}

func (e *falAPIError) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	switch data[0] {
	case '"':
		return json.Unmarshal(data, &e.Message)
	case '[':
		var items []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		msgs := make([]string, 0, len(items))
		for _, item := range items {
			if strings.TrimSpace(item.Msg) != "" {
				msgs = append(msgs, item.Msg)
			}
		}
		e.Message = strings.Join(msgs, "; ")
		return nil
	default:
		var obj struct {
			Message string `json:"message"`
			Detail  string `json:"detail"`
		}
		if err := json.Unmarshal(data, &obj); err != nil {
			return err
		}
		e.Message = obj.Message
		if e.Message == "" {
			e.Message = obj.Detail
		}
		return nil
	}
}

// falResultEnvelope covers the result shapes seen from the queue:
// {"images":[...]}, {"data":{"images":[...]}}, {"image":{...}} and a
// "response" wrapper around any of them.
type falResultEnvelope struct {
	RequestID string             `json:"request_id"`
	Status    string             `json:"status"`
	Images    []falImagePayload  `json:"images"`
	Image     *falImagePayload   `json:"image"`
	Data      *falDataField      `json:"data"`
	Response  *falResultEnvelope `json:"response"`
	Error     *falAPIError       `json:"error"`
	Detail    *falAPIError       `json:"detail"`
}

// falDataField holds "data" when it is an object; an array of images is
// folded into Images.
type falDataField struct {
	falResultEnvelope
}

func (d *falDataField) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if data[0] == '[' {
		return json.Unmarshal(data, &d.Images)
	}
	if data[0] != '{' {
		return nil
	}
	return json.Unmarshal(data, &d.falResultEnvelope)
}

// outputURL returns the first image URL found in any supported shape.
func (e *falResultEnvelope) outputURL() string {
	if e == nil {
		return ""
	}
	for _, img := range e.Images {
		if url := strings.TrimSpace(img.URL); url != "" {
			return url
		}
	}
	if e.Data != nil {
		if url := e.Data.outputURL(); url != "" {
			return url
		}
	}
	if e.Image != nil {
		if url := strings.TrimSpace(e.Image.URL); url != "" {
			return url
		}
	}
	return e.Response.outputURL()
}

func (e *falResultEnvelope) status() string {
	if e == nil {
		return ""
	}
	if s := strings.TrimSpace(e.Status); s != "" {
		return s
	}
	if e.Response != nil {
		return e.Response.status()
	}
	if e.Data != nil {
		return e.Data.status()
	}
	return ""
}

func (e *falResultEnvelope) errorMessage() string {
	if e == nil {
		return ""
	}
	if e.Error != nil && strings.TrimSpace(e.Error.Message) != "" {
		return strings.TrimSpace(e.Error.Message)
	}
	if e.Detail != nil && strings.TrimSpace(e.Detail.Message) != "" {
		return strings.TrimSpace(e.Detail.Message)
	}
	if e.Response != nil {
		return e.Response.errorMessage()
	}
	return ""
}

func decodeResultEnvelope(body []byte) (*falResultEnvelope, error) {
	var envelope falResultEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, err
	}
	return &envelope, nil
}

type falSubmitResponse struct {
	RequestID   string       `json:"request_id"`
	StatusURL   string       `json:"status_url"`
	ResponseURL string       `json:"response_url"`
	Error       *falAPIError `json:"error"`
	Detail      *falAPIError `json:"detail"`
}

type falStatusResponse struct {
	Status        string       `json:"status"`
	QueuePosition *int         `json:"queue_position"`
	ResponseURL   string       `json:"response_url"`
	Error         *falAPIError `json:"error"`
}
