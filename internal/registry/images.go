package registry

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MaxImages is the per-record image limit.
const MaxImages = 3

// Image is an uploaded picture as returned by the storage provider.
type Image struct {
	URL    string `json:"url" validate:"required,http_url"`
	Key    string `json:"key"`
	Width  *int   `json:"width,omitempty"`
	Height *int   `json:"height,omitempty"`
}

// Images is the canonical ordered list. A nil Images marshals as null, which
// is the state of a pledge whose images moved to its submission.
type Images []Image

// ImageShape tags the stored encodings Images can be read from.
type ImageShape uint8

const (
	// ShapeNone is SQL NULL, JSON null or no value at all.
	ShapeNone ImageShape = iota
	// ShapeList is a JSON array of image objects or URL strings.
	ShapeList
	// ShapeEncodedList is a JSON string whose content is itself a list or a urls wrapper.
	ShapeEncodedList
	// ShapeURLs is an object of the form {"urls": [...]}.
	ShapeURLs
	// ShapeInvalid is anything else.
	ShapeInvalid
)

func (s ImageShape) String() string {
	switch s {
	case ShapeNone:
		return "none"
	case ShapeList:
		return "list"
	case ShapeEncodedList:
		return "encoded-list"
	case ShapeURLs:
		return "urls"
	default:
		return "invalid"
	}
}

// ImageSource is a stored images value classified by shape, with its raw
// entries. Normalize turns any source into Images.
type ImageSource struct {
	Shape ImageShape
	Items []json.RawMessage
}

// ClassifyImages inspects raw JSON and never fails: malformed input is
// reported as ShapeInvalid.
func ClassifyImages(raw []byte) ImageSource {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ImageSource{Shape: ShapeNone}
	}
	switch raw[0] {
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return ImageSource{Shape: ShapeInvalid}
		}
		return ImageSource{Shape: ShapeList, Items: items}
	case '{':
		var wrapper struct {
			URLs *[]json.RawMessage `json:"urls"`
		}
		if err := json.Unmarshal(raw, &wrapper); err != nil || wrapper.URLs == nil {
			return ImageSource{Shape: ShapeInvalid}
		}
		return ImageSource{Shape: ShapeURLs, Items: *wrapper.URLs}
	case '"':
		var inner string
		if err := json.Unmarshal(raw, &inner); err != nil {
			return ImageSource{Shape: ShapeInvalid}
		}
		nested := ClassifyImages([]byte(inner))
		if nested.Shape != ShapeList && nested.Shape != ShapeURLs {
			return ImageSource{Shape: ShapeInvalid}
		}
		return ImageSource{Shape: ShapeEncodedList, Items: nested.Items}
	}
	return ImageSource{Shape: ShapeInvalid}
}

// Normalize produces the canonical list. ShapeNone yields nil; every other
// shape yields a non-nil list, empty when nothing usable was found. Entries
// may be image objects or bare URL strings; entries without a URL are dropped.
func (s ImageSource) Normalize() Images {
	if s.Shape == ShapeNone {
		return nil
	}
	out := Images{}
	if s.Shape == ShapeInvalid {
		return out
	}
	for _, item := range s.Items {
		if img, ok := decodeImageItem(item); ok {
			out = append(out, img)
		}
	}
	return out
}

// NormalizeImages is ClassifyImages followed by Normalize.
func NormalizeImages(raw []byte) Images {
	return ClassifyImages(raw).Normalize()
}

func decodeImageItem(item json.RawMessage) (Image, bool) {
	item = bytes.TrimSpace(item)
	if len(item) == 0 {
		return Image{}, false
	}
	switch item[0] {
	case '"':
		var url string
		if err := json.Unmarshal(item, &url); err != nil || url == "" {
			return Image{}, false
		}
		return Image{URL: url}, true
	case '{':
		var w struct {
			URL    string   `json:"url"`
			Key    string   `json:"key"`
			Width  *float64 `json:"width"`
			Height *float64 `json:"height"`
		}
		if err := json.Unmarshal(item, &w); err != nil || w.URL == "" {
			return Image{}, false
		}
		return Image{URL: w.URL, Key: w.Key, Width: intPtr(w.Width), Height: intPtr(w.Height)}, true
	}
	return Image{}, false
}

func intPtr(f *float64) *int {
	if f == nil {
		return nil
	}
	v := int(*f)
	return &v
}

// UnmarshalJSON accepts every stored shape.
func (im *Images) UnmarshalJSON(data []byte) error {
	*im = NormalizeImages(data)
	return nil
}

// URLs returns the image URLs in order.
func (im Images) URLs() []string {
	out := make([]string, 0, len(im))
	for _, img := range im {
		out = append(out, img.URL)
	}
	return out
}

// Clone returns a copy that shares no memory with im. nil stays nil.
func (im Images) Clone() Images {
	if im == nil {
		return nil
	}
	out := make(Images, len(im))
	for i, img := range im {
		out[i] = img
		if img.Width != nil {
			w := *img.Width
			out[i].Width = &w
		}
		if img.Height != nil {
			h := *img.Height
			out[i].Height = &h
		}
	}
	return out
}

// Value stores Images as jsonb; nil becomes SQL NULL.
func (im Images) Value() (driver.Value, error) {
	if im == nil {
		return nil, nil
	}
	b, err := json.Marshal([]Image(im))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan reads any stored shape.
func (im *Images) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*im = nil
	case []byte:
		*im = NormalizeImages(v)
	case string:
		*im = NormalizeImages([]byte(v))
	default:
		return fmt.Errorf("registry: cannot scan %T into Images", src)
	}
	return nil
}
