package dto

import (
	"encoding/xml"
	"fmt"

	"github.com/jsamuelsen11/s3-gateway/internal/domain"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

// MaxDeleteObjects bounds the keys in one DeleteObjects request.
const MaxDeleteObjects = 1000

const msgRequired = "is required"

// DecodeXML unmarshals body into v. Malformed input becomes a
// *domain.ValidationError on the "xml" field.
func DecodeXML(body []byte, v any) error {
	if err := xml.Unmarshal(body, v); err != nil {
		return &domain.ValidationError{Fields: map[string]string{"xml": err.Error()}}
	}
	return nil
}

// CreateBucketConfiguration is the optional CreateBucket body.
type CreateBucketConfiguration struct {
	XMLName            xml.Name `xml:"CreateBucketConfiguration"`
	LocationConstraint string   `xml:"LocationConstraint"`
}

// Build validates the document against limit and returns the tag set.
func (t *Tagging) Build(limit int) (tag.Set, error) {
	tags := make([]tag.Tag, len(t.TagSet))
	for i, tt := range t.TagSet {
		tags[i] = tag.Tag{Key: tt.Key, Value: tt.Value}
	}
	return tag.Build(tags, limit)
}

// ObjectIdentifier names one key in a DeleteObjects request.
type ObjectIdentifier struct {
	Key string `xml:"Key"`
}

// Delete is the DeleteObjects request body.
type Delete struct {
	XMLName xml.Name           `xml:"Delete"`
	Quiet   bool               `xml:"Quiet"`
	Objects []ObjectIdentifier `xml:"Object"`
}

// Validate checks the key count.
// Returns a *domain.ValidationError if any checks fail.
func (d *Delete) Validate() error {
	fields := make(map[string]string)

	switch {
	case len(d.Objects) == 0:
		fields["Object"] = msgRequired
	case len(d.Objects) > MaxDeleteObjects:
		fields["Object"] = fmt.Sprintf("at most %d keys allowed, got %d", MaxDeleteObjects, len(d.Objects))
	}
	for _, o := range d.Objects {
		if o.Key == "" {
			fields["Key"] = "must not be empty"
		}
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Keys returns the requested keys in request order.
func (d *Delete) Keys() []string {
	keys := make([]string, len(d.Objects))
	for i, o := range d.Objects {
		keys[i] = o.Key
	}
	return keys
}

// CompletePart is one part listed in CompleteMultipartUpload.
type CompletePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// CompleteMultipartUpload is the CompleteMultipartUpload request body.
type CompleteMultipartUpload struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// Validate checks that at least one part is listed and every part number is
// in range. Ordering is checked against the stored parts by multipart.Select.
func (c *CompleteMultipartUpload) Validate() error {
	fields := make(map[string]string)

	if len(c.Parts) == 0 {
		fields["Part"] = msgRequired
	}
	for _, p := range c.Parts {
		if !multipart.ValidPartNumber(p.PartNumber) {
			fields["PartNumber"] = fmt.Sprintf("must be %d..%d", multipart.MinPartNumber, multipart.MaxPartNumber)
		}
	}

	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}
	return nil
}

// Completed converts the listed parts.
func (c *CompleteMultipartUpload) Completed() []multipart.CompletedPart {
	out := make([]multipart.CompletedPart, len(c.Parts))
	for i, p := range c.Parts {
		out[i] = multipart.CompletedPart{Number: p.PartNumber, ETag: p.ETag}
	}
	return out
}
