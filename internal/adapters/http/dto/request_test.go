package dto_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/domain"
)

func TestDecodeXML_Malformed(t *testing.T) {
	t.Parallel()

	var cfg dto.CreateBucketConfiguration
	err := dto.DecodeXML([]byte("<CreateBucketConfiguration>"), &cfg)

	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want *domain.ValidationError", err)
	}
	if _, ok := verr.Fields["xml"]; !ok {
		t.Errorf("Fields = %v, want an xml entry", verr.Fields)
	}
}

func TestDelete_Validate(t *testing.T) {
	t.Parallel()

	many := make([]dto.ObjectIdentifier, dto.MaxDeleteObjects+1)
	for i := range many {
		many[i] = dto.ObjectIdentifier{Key: "k"}
	}

	tests := []struct {
		name      string
		req       dto.Delete
		wantField string
	}{
		{name: "valid", req: dto.Delete{Objects: []dto.ObjectIdentifier{{Key: "a"}, {Key: "b"}}}},
		{name: "no objects", req: dto.Delete{}, wantField: "Object"},
		{name: "too many objects", req: dto.Delete{Objects: many}, wantField: "Object"},
		{name: "empty key", req: dto.Delete{Objects: []dto.ObjectIdentifier{{Key: ""}}}, wantField: "Key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := tt.req.Validate()
			if tt.wantField == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			var verr *domain.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Validate() = %v, want *domain.ValidationError", err)
			}
			if _, ok := verr.Fields[tt.wantField]; !ok {
				t.Errorf("Fields = %v, want %q", verr.Fields, tt.wantField)
			}
		})
	}
}

func TestDelete_DecodeAndKeys(t *testing.T) {
	t.Parallel()

	body := `<Delete><Quiet>true</Quiet><Object><Key>b.txt</Key></Object><Object><Key>a.txt</Key></Object></Delete>`
	var req dto.Delete
	if err := dto.DecodeXML([]byte(body), &req); err != nil {
		t.Fatalf("DecodeXML: %v", err)
	}
	if !req.Quiet {
		t.Error("Quiet = false, want true")
	}
	if got := strings.Join(req.Keys(), ","); got != "b.txt,a.txt" {
		t.Errorf("Keys() = %q, want request order", got)
	}
}

func TestCompleteMultipartUpload_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		parts   []dto.CompletePart
		wantErr bool
	}{
		{name: "valid", parts: []dto.CompletePart{{PartNumber: 1, ETag: `"a"`}, {PartNumber: 2, ETag: `"b"`}}},
		{name: "no parts", wantErr: true},
		{name: "part number zero", parts: []dto.CompletePart{{PartNumber: 0}}, wantErr: true},
		{name: "part number too large", parts: []dto.CompletePart{{PartNumber: 10001}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := dto.CompleteMultipartUpload{Parts: tt.parts}
			err := c.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, domain.ErrValidation) {
				t.Errorf("Validate() = %v, want ErrValidation", err)
			}
		})
	}
}

func TestCompleteMultipartUpload_Completed(t *testing.T) {
	t.Parallel()

	c := dto.CompleteMultipartUpload{Parts: []dto.CompletePart{{PartNumber: 3, ETag: `"x"`}}}
	got := c.Completed()
	if len(got) != 1 || got[0].Number != 3 || got[0].ETag != `"x"` {
		t.Errorf("Completed() = %+v", got)
	}
}

func TestTagging_Build(t *testing.T) {
	t.Parallel()

	doc := dto.Tagging{TagSet: []dto.Tag{{Key: "a", Value: "1"}, {Key: "b", Value: "2"}}}
	set, err := doc.Build(10)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if set["a"] != "1" || set["b"] != "2" {
		t.Errorf("set = %v", set)
	}

	if _, err := doc.Build(1); err == nil {
		t.Error("Build over the limit succeeded, want error")
	}
}
