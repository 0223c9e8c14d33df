// Package grading evaluates responses against questions.
package grading

import (
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

type Kind string

const (
	KindNone      Kind = "none"
	KindSelection Kind = "selection"
	KindPairing   Kind = "pairing"
	KindText      Kind = "text"
	KindUpload    Kind = "upload"
)

// Response is the closed set of answer payloads. Only types in this package implement it.
type Response interface {
	Kind() Kind
	sealed()
}

// NoResponse is recorded when the question timer ran out.
type NoResponse struct{}

// Selection picks choices by id. Single-select questions take exactly one.
type Selection struct {
	ChoiceIDs []string `json:"choice_ids"`
}

// Pairing maps choice id to the match key the subject paired it with.
type Pairing struct {
	Pairs map[string]string `json:"pairs"`
}

type Text struct {
	Body string `json:"body"`
}

// Upload points at a blob stored before submission.
type Upload struct {
	Ref         string `json:"ref"`
	ContentType string `json:"content_type,omitempty"`
	DurationSec int    `json:"duration_sec,omitempty"` // voice recordings
}

func (NoResponse) Kind() Kind { return KindNone }
func (Selection) Kind() Kind  { return KindSelection }
func (Pairing) Kind() Kind    { return KindPairing }
func (Text) Kind() Kind       { return KindText }
func (Upload) Kind() Kind     { return KindUpload }

func (NoResponse) sealed() {}
func (Selection) sealed()  {}
func (Pairing) sealed()    {}
func (Text) sealed()       {}
func (Upload) sealed()     {}

// Encode returns the kind tag and JSON body used to persist r.
func Encode(r Response) (Kind, []byte, error) {
	if r == nil {
		return "", nil, errors.New("nil response")
	}
	b, err := json.Marshal(r)
	if err != nil {
		return "", nil, errors.Wrap(err, "encode response")
	}
	return r.Kind(), b, nil
}

// Decode is the inverse of Encode.
func Decode(kind Kind, body []byte) (Response, error) {
	var (
		r   Response
		err error
	)
	switch kind {
	case KindNone:
		return NoResponse{}, nil
	case KindSelection:
		var v Selection
		err = json.Unmarshal(body, &v)
		r = v
	case KindPairing:
		var v Pairing
		err = json.Unmarshal(body, &v)
		r = v
	case KindText:
		var v Text
		err = json.Unmarshal(body, &v)
		r = v
	case KindUpload:
		var v Upload
		err = json.Unmarshal(body, &v)
		r = v
	default:
		return nil, errors.Wrapf(ErrMalformedResponse, "unknown response kind %q", kind)
	}
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedResponse, "decode %s: %v", kind, err)
	}
	return r, nil
}

// Envelope is the wire form of a response: a kind tag plus the variant's fields.
type Envelope struct {
	Kind        Kind              `json:"kind"`
	ChoiceIDs   []string          `json:"choice_ids,omitempty"`
	Pairs       map[string]string `json:"pairs,omitempty"`
	Body        string            `json:"body,omitempty"`
	Ref         string            `json:"ref,omitempty"`
	ContentType string            `json:"content_type,omitempty"`
	DurationSec int               `json:"duration_sec,omitempty"`
}

// Response converts the envelope into its variant.
func (e Envelope) Response() (Response, error) {
	switch e.Kind {
	case KindNone:
		return NoResponse{}, nil
	case KindSelection:
		return Selection{ChoiceIDs: e.ChoiceIDs}, nil
	case KindPairing:
		return Pairing{Pairs: e.Pairs}, nil
	case KindText:
		return Text{Body: e.Body}, nil
	case KindUpload:
		return Upload{Ref: e.Ref, ContentType: e.ContentType, DurationSec: e.DurationSec}, nil
	default:
		return nil, errors.Wrapf(ErrMalformedResponse, "unknown response kind %q", e.Kind)
	}
}

// EnvelopeOf is the inverse of Envelope.Response.
func EnvelopeOf(r Response) Envelope {
	switch v := r.(type) {
	case Selection:
		return Envelope{Kind: KindSelection, ChoiceIDs: v.ChoiceIDs}
	case Pairing:
		return Envelope{Kind: KindPairing, Pairs: v.Pairs}
	case Text:
		return Envelope{Kind: KindText, Body: v.Body}
	case Upload:
		return Envelope{Kind: KindUpload, Ref: v.Ref, ContentType: v.ContentType, DurationSec: v.DurationSec}
	default:
		return Envelope{Kind: KindNone}
	}
}
