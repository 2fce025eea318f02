package dto_test

import (
	"bytes"
	"encoding/xml"
	"strings"
	"testing"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/adapters/http/dto"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/kv"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

var created = time.Date(2026, 1, 2, 3, 4, 5, 600_000_000, time.UTC)

func TestMarshalXML_Declaration(t *testing.T) {
	t.Parallel()

	body, err := dto.MarshalXML(dto.NewLocationConstraint("eu-west-1"))
	if err != nil {
		t.Fatalf("MarshalXML: %v", err)
	}
	if !bytes.HasPrefix(body, []byte(xml.Header)) {
		t.Errorf("body = %q, want XML declaration first", body)
	}
	if !bytes.Contains(body, []byte(">eu-west-1</LocationConstraint>")) {
		t.Errorf("body = %q, want region", body)
	}
}

func TestNewLocationConstraint_DefaultRegionIsEmpty(t *testing.T) {
	t.Parallel()

	if got := dto.NewLocationConstraint("us-east-1").Region; got != "" {
		t.Errorf("Region = %q, want empty", got)
	}
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	if got := dto.FormatTime(created); got != "2026-01-02T03:04:05.600Z" {
		t.Errorf("FormatTime = %q", got)
	}
}

func TestToListAllMyBucketsResult(t *testing.T) {
	t.Parallel()

	got := dto.ToListAllMyBucketsResult("alice", []bucket.Bucket{{Name: "photos", CreatedAt: created}})
	if got.Owner.ID != "alice" {
		t.Errorf("Owner.ID = %q, want alice", got.Owner.ID)
	}
	if len(got.Buckets) != 1 || got.Buckets[0].Name != "photos" {
		t.Fatalf("Buckets = %+v", got.Buckets)
	}
	if got.Buckets[0].CreationDate != dto.FormatTime(created) {
		t.Errorf("CreationDate = %q", got.Buckets[0].CreationDate)
	}
}

func TestToListBucketResultV2(t *testing.T) {
	t.Parallel()

	l := &object.Listing{
		Objects:        []object.Object{{Key: "b.jpg", ETag: "abc", Size: 3, ModifiedAt: created}},
		CommonPrefixes: []string{"a/"},
		IsTruncated:    true,
		NextMarker:     "b.jpg",
	}
	q := object.ListQuery{Prefix: "", Delimiter: "/", MaxKeys: 2}
	got := dto.ToListBucketResultV2("photos", q, "tok", "", l)

	if got.KeyCount != 2 {
		t.Errorf("KeyCount = %d, want 2", got.KeyCount)
	}
	if got.NextContinuationToken != "b.jpg" {
		t.Errorf("NextContinuationToken = %q, want b.jpg", got.NextContinuationToken)
	}
	if got.ContinuationToken != "tok" {
		t.Errorf("ContinuationToken = %q, want tok", got.ContinuationToken)
	}
	if got.Contents[0].ETag != `"abc"` {
		t.Errorf("ETag = %s, want quoted", got.Contents[0].ETag)
	}
	if got.Contents[0].Owner != nil {
		t.Error("v2 contents carry an owner, want none")
	}
}

func TestToListBucketResult_IncludesOwner(t *testing.T) {
	t.Parallel()

	l := &object.Listing{Objects: []object.Object{{Key: "a"}}}
	got := dto.ToListBucketResult("photos", "alice", object.ListQuery{After: "0", MaxKeys: 10}, l)

	if got.Marker != "0" {
		t.Errorf("Marker = %q, want 0", got.Marker)
	}
	if got.Contents[0].Owner == nil || got.Contents[0].Owner.ID != "alice" {
		t.Errorf("Owner = %+v, want alice", got.Contents[0].Owner)
	}
	if got.CommonPrefixes != nil {
		t.Errorf("CommonPrefixes = %v, want nil", got.CommonPrefixes)
	}
}

func TestToAccessControlPolicy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		acl        bucket.CannedACL
		wantGrants int
	}{
		{acl: bucket.ACLPrivate, wantGrants: 1},
		{acl: bucket.ACLPublicRead, wantGrants: 2},
		{acl: bucket.ACLPublicReadWrite, wantGrants: 3},
		{acl: bucket.ACLAuthenticated, wantGrants: 2},
	}

	for _, tt := range tests {
		t.Run(string(tt.acl), func(t *testing.T) {
			t.Parallel()

			got := dto.ToAccessControlPolicy("alice", tt.acl)
			if len(got.Grants) != tt.wantGrants {
				t.Fatalf("len(Grants) = %d, want %d", len(got.Grants), tt.wantGrants)
			}
			if got.Grants[0].Grantee.ID != "alice" || got.Grants[0].Permission != "FULL_CONTROL" {
				t.Errorf("Grants[0] = %+v, want owner full control", got.Grants[0])
			}
		})
	}
}

func TestToTagging_SortedByKey(t *testing.T) {
	t.Parallel()

	got := dto.ToTagging(tag.Set{"team": "core", "env": "dev"})
	if len(got.TagSet) != 2 || got.TagSet[0].Key != "env" || got.TagSet[1].Key != "team" {
		t.Errorf("TagSet = %+v, want sorted", got.TagSet)
	}
}

func TestToKeyListResponse(t *testing.T) {
	t.Parallel()

	entries := []kv.Entry{{Key: "a", ModifiedAt: created}, {Key: "b", ModifiedAt: created}}

	got := dto.ToKeyListResponse("sessions", entries, true)
	if got.NextAfter != "b" {
		t.Errorf("NextAfter = %q, want b", got.NextAfter)
	}
	if !strings.HasPrefix(got.Keys[0].ModifiedAt, "2026-01-02T03:04:05") {
		t.Errorf("ModifiedAt = %q", got.Keys[0].ModifiedAt)
	}

	if got := dto.ToKeyListResponse("sessions", entries, false); got.NextAfter != "" {
		t.Errorf("NextAfter = %q, want empty when not truncated", got.NextAfter)
	}
}

func TestQuoteETag(t *testing.T) {
	t.Parallel()

	if got := dto.QuoteETag("abc-2"); got != `"abc-2"` {
		t.Errorf("QuoteETag = %s", got)
	}
}
