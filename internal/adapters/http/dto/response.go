// Package dto holds the wire documents of the gateway: S3 XML request and
// result bodies, the S3 error document, and the JSON bodies and RFC 9457
// problem responses of the key-value API.
package dto

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"

	"github.com/jsamuelsen11/s3-gateway/internal/domain/bucket"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/kv"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/multipart"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/object"
	"github.com/jsamuelsen11/s3-gateway/internal/domain/tag"
)

// Content types and the S3 document namespace.
const (
	ContentTypeXML  = "application/xml"
	ContentTypeJSON = "application/json"
	ContentProblem  = "application/problem+json"
	Namespace       = "http://s3.amazonaws.com/doc/2006-03-01/"
)

// timeFormat is the ISO 8601 form S3 uses in XML bodies.
const timeFormat = "2006-01-02T15:04:05.000Z"

// FormatTime renders t the way S3 XML bodies expect.
func FormatTime(t time.Time) string { return t.UTC().Format(timeFormat) }

// QuoteETag wraps an ETag in the double quotes S3 sends on the wire.
func QuoteETag(etag string) string { return fmt.Sprintf("%q", etag) }

// MarshalXML encodes v with the XML declaration prepended.
func MarshalXML(v any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("encoding %T: %w", v, err)
	}
	return buf.Bytes(), nil
}

// Owner identifies the account owning a bucket or object.
type Owner struct {
	ID          string `xml:"ID"`
	DisplayName string `xml:"DisplayName"`
}

// NewOwner returns the Owner element for account.
func NewOwner(account string) Owner {
	return Owner{ID: account, DisplayName: account}
}

// --- Buckets ---

// BucketEntry is one bucket in ListAllMyBucketsResult.
type BucketEntry struct {
	Name         string `xml:"Name"`
	CreationDate string `xml:"CreationDate"`
}

// ListAllMyBucketsResult is the ListBuckets response.
type ListAllMyBucketsResult struct {
	XMLName xml.Name      `xml:"ListAllMyBucketsResult"`
	XMLNS   string        `xml:"xmlns,attr"`
	Owner   Owner         `xml:"Owner"`
	Buckets []BucketEntry `xml:"Buckets>Bucket"`
}

// ToListAllMyBucketsResult converts bucket records for account.
func ToListAllMyBucketsResult(account string, buckets []bucket.Bucket) ListAllMyBucketsResult {
	out := ListAllMyBucketsResult{
		XMLNS:   Namespace,
		Owner:   NewOwner(account),
		Buckets: make([]BucketEntry, len(buckets)),
	}
	for i, b := range buckets {
		out.Buckets[i] = BucketEntry{Name: b.Name, CreationDate: FormatTime(b.CreatedAt)}
	}
	return out
}

// LocationConstraint is the GetBucketLocation response.
type LocationConstraint struct {
	XMLName xml.Name `xml:"LocationConstraint"`
	XMLNS   string   `xml:"xmlns,attr"`
	Region  string   `xml:",chardata"`
}

// NewLocationConstraint returns the document for region. us-east-1 is
// reported as empty, as S3 does.
func NewLocationConstraint(region string) LocationConstraint {
	if region == "us-east-1" {
		region = ""
	}
	return LocationConstraint{XMLNS: Namespace, Region: region}
}

// --- Listings ---

// CommonPrefix is a grouped key prefix in a listing.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// Contents is one object in a listing.
type Contents struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
	Owner        *Owner `xml:"Owner,omitempty"`
}

// ListBucketResult is the ListObjects (v1) response.
type ListBucketResult struct {
	XMLName        xml.Name       `xml:"ListBucketResult"`
	XMLNS          string         `xml:"xmlns,attr"`
	Name           string         `xml:"Name"`
	Prefix         string         `xml:"Prefix"`
	Marker         string         `xml:"Marker"`
	NextMarker     string         `xml:"NextMarker,omitempty"`
	Delimiter      string         `xml:"Delimiter,omitempty"`
	MaxKeys        int            `xml:"MaxKeys"`
	IsTruncated    bool           `xml:"IsTruncated"`
	Contents       []Contents     `xml:"Contents"`
	CommonPrefixes []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ListBucketResultV2 is the ListObjectsV2 response.
type ListBucketResultV2 struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	XMLNS                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	Contents              []Contents     `xml:"Contents"`
	CommonPrefixes        []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

func toContents(objects []object.Object, owner *Owner) []Contents {
	out := make([]Contents, len(objects))
	for i, o := range objects {
		out[i] = Contents{
			Key:          o.Key,
			LastModified: FormatTime(o.ModifiedAt),
			ETag:         QuoteETag(o.ETag),
			Size:         o.Size,
			StorageClass: "STANDARD",
			Owner:        owner,
		}
	}
	return out
}

func toCommonPrefixes(prefixes []string) []CommonPrefix {
	if len(prefixes) == 0 {
		return nil
	}
	out := make([]CommonPrefix, len(prefixes))
	for i, p := range prefixes {
		out[i] = CommonPrefix{Prefix: p}
	}
	return out
}

// ToListBucketResult converts a listing page for ListObjects v1.
func ToListBucketResult(name, owner string, q object.ListQuery, l *object.Listing) ListBucketResult {
	o := NewOwner(owner)
	return ListBucketResult{
		XMLNS:          Namespace,
		Name:           name,
		Prefix:         q.Prefix,
		Marker:         q.After,
		NextMarker:     l.NextMarker,
		Delimiter:      q.Delimiter,
		MaxKeys:        q.MaxKeys,
		IsTruncated:    l.IsTruncated,
		Contents:       toContents(l.Objects, &o),
		CommonPrefixes: toCommonPrefixes(l.CommonPrefixes),
	}
}

// ToListBucketResultV2 converts a listing page for ListObjectsV2.
// Continuation tokens are the marker itself.
func ToListBucketResultV2(name string, q object.ListQuery, token, startAfter string, l *object.Listing) ListBucketResultV2 {
	return ListBucketResultV2{
		XMLNS:                 Namespace,
		Name:                  name,
		Prefix:                q.Prefix,
		Delimiter:             q.Delimiter,
		KeyCount:              len(l.Objects) + len(l.CommonPrefixes),
		MaxKeys:               q.MaxKeys,
		IsTruncated:           l.IsTruncated,
		ContinuationToken:     token,
		NextContinuationToken: l.NextMarker,
		StartAfter:            startAfter,
		Contents:              toContents(l.Objects, nil),
		CommonPrefixes:        toCommonPrefixes(l.CommonPrefixes),
	}
}

// --- Objects ---

// CopyObjectResult is the CopyObject response.
type CopyObjectResult struct {
	XMLName      xml.Name `xml:"CopyObjectResult"`
	XMLNS        string   `xml:"xmlns,attr"`
	LastModified string   `xml:"LastModified"`
	ETag         string   `xml:"ETag"`
}

// NewCopyObjectResult returns the document for the copied object.
func NewCopyObjectResult(o *object.Object) CopyObjectResult {
	return CopyObjectResult{
		XMLNS:        Namespace,
		LastModified: FormatTime(o.ModifiedAt),
		ETag:         QuoteETag(o.ETag),
	}
}

// Deleted reports one removed key in DeleteResult.
type Deleted struct {
	Key string `xml:"Key"`
}

// DeleteError reports one key that could not be removed.
type DeleteError struct {
	Key     string `xml:"Key"`
	Code    string `xml:"Code"`
	Message string `xml:"Message"`
}

// DeleteResult is the DeleteObjects response.
type DeleteResult struct {
	XMLName xml.Name      `xml:"DeleteResult"`
	XMLNS   string        `xml:"xmlns,attr"`
	Deleted []Deleted     `xml:"Deleted,omitempty"`
	Errors  []DeleteError `xml:"Error,omitempty"`
}

// --- ACLs ---

// Grantee is the subject of a Grant.
type Grantee struct {
	XMLNSXSI    string `xml:"xmlns:xsi,attr"`
	Type        string `xml:"xsi:type,attr"`
	ID          string `xml:"ID,omitempty"`
	DisplayName string `xml:"DisplayName,omitempty"`
	URI         string `xml:"URI,omitempty"`
}

// Grant pairs a grantee with a permission.
type Grant struct {
	Grantee    Grantee `xml:"Grantee"`
	Permission string  `xml:"Permission"`
}

// AccessControlPolicy is the GetBucketAcl / GetObjectAcl response.
type AccessControlPolicy struct {
	XMLName xml.Name `xml:"AccessControlPolicy"`
	XMLNS   string   `xml:"xmlns,attr"`
	Owner   Owner    `xml:"Owner"`
	Grants  []Grant  `xml:"AccessControlList>Grant"`
}

const (
	xsiNamespace     = "http://www.w3.org/2001/XMLSchema-instance"
	allUsersURI      = "http://acs.amazonaws.com/groups/global/AllUsers"
	authenticatedURI = "http://acs.amazonaws.com/groups/global/AuthenticatedUsers"
	permFullControl  = "FULL_CONTROL"
	granteeCanonical = "CanonicalUser"
	granteeGroup     = "Group"
	permissionRead   = "READ"
	permissionWrite  = "WRITE"
)

// ToAccessControlPolicy expands a canned ACL into its grants.
func ToAccessControlPolicy(owner string, acl bucket.CannedACL) AccessControlPolicy {
	group := func(uri, perm string) Grant {
		return Grant{Grantee: Grantee{XMLNSXSI: xsiNamespace, Type: granteeGroup, URI: uri}, Permission: perm}
	}

	grants := []Grant{{
		Grantee:    Grantee{XMLNSXSI: xsiNamespace, Type: granteeCanonical, ID: owner, DisplayName: owner},
		Permission: permFullControl,
	}}
	switch acl {
	case bucket.ACLPublicRead:
		grants = append(grants, group(allUsersURI, permissionRead))
	case bucket.ACLPublicReadWrite:
		grants = append(grants, group(allUsersURI, permissionRead), group(allUsersURI, permissionWrite))
	case bucket.ACLAuthenticated:
		grants = append(grants, group(authenticatedURI, permissionRead))
	}

	return AccessControlPolicy{XMLNS: Namespace, Owner: NewOwner(owner), Grants: grants}
}

// --- Tagging ---

// Tag is one key/value pair of a tag set.
type Tag struct {
	Key   string `xml:"Key"`
	Value string `xml:"Value"`
}

// Tagging is the tag-set document used by both tagging requests and responses.
type Tagging struct {
	XMLName xml.Name `xml:"Tagging"`
	XMLNS   string   `xml:"xmlns,attr,omitempty"`
	TagSet  []Tag    `xml:"TagSet>Tag"`
}

// ToTagging converts a tag set, ordered by key.
func ToTagging(set tag.Set) Tagging {
	sorted := set.Sorted()
	out := Tagging{XMLNS: Namespace, TagSet: make([]Tag, len(sorted))}
	for i, t := range sorted {
		out.TagSet[i] = Tag{Key: t.Key, Value: t.Value}
	}
	return out
}

// --- Multipart ---

// InitiateMultipartUploadResult is the CreateMultipartUpload response.
type InitiateMultipartUploadResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	UploadID string   `xml:"UploadId"`
}

// CompleteMultipartUploadResult is the CompleteMultipartUpload response.
type CompleteMultipartUploadResult struct {
	XMLName  xml.Name `xml:"CompleteMultipartUploadResult"`
	XMLNS    string   `xml:"xmlns,attr"`
	Location string   `xml:"Location"`
	Bucket   string   `xml:"Bucket"`
	Key      string   `xml:"Key"`
	ETag     string   `xml:"ETag"`
}

// PartEntry is one part in ListPartsResult.
type PartEntry struct {
	PartNumber   int    `xml:"PartNumber"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// ListPartsResult is the ListParts response.
type ListPartsResult struct {
	XMLName      xml.Name    `xml:"ListPartsResult"`
	XMLNS        string      `xml:"xmlns,attr"`
	Bucket       string      `xml:"Bucket"`
	Key          string      `xml:"Key"`
	UploadID     string      `xml:"UploadId"`
	Owner        Owner       `xml:"Owner"`
	StorageClass string      `xml:"StorageClass"`
	IsTruncated  bool        `xml:"IsTruncated"`
	Parts        []PartEntry `xml:"Part"`
}

// ToListPartsResult converts the stored parts of u.
func ToListPartsResult(u *multipart.Upload, parts []multipart.Part) ListPartsResult {
	out := ListPartsResult{
		XMLNS:        Namespace,
		Bucket:       u.Bucket,
		Key:          u.Key,
		UploadID:     u.ID,
		Owner:        NewOwner(u.Owner),
		StorageClass: "STANDARD",
		Parts:        make([]PartEntry, len(parts)),
	}
	for i, p := range parts {
		out.Parts[i] = PartEntry{
			PartNumber:   p.Number,
			LastModified: FormatTime(p.ModifiedAt),
			ETag:         QuoteETag(p.ETag),
			Size:         p.Size,
		}
	}
	return out
}

// UploadEntry is one upload in ListMultipartUploadsResult.
type UploadEntry struct {
	Key          string `xml:"Key"`
	UploadID     string `xml:"UploadId"`
	Initiator    Owner  `xml:"Initiator"`
	Owner        Owner  `xml:"Owner"`
	StorageClass string `xml:"StorageClass"`
	Initiated    string `xml:"Initiated"`
}

// ListMultipartUploadsResult is the ListMultipartUploads response.
type ListMultipartUploadsResult struct {
	XMLName            xml.Name       `xml:"ListMultipartUploadsResult"`
	XMLNS              string         `xml:"xmlns,attr"`
	Bucket             string         `xml:"Bucket"`
	KeyMarker          string         `xml:"KeyMarker"`
	UploadIDMarker     string         `xml:"UploadIdMarker"`
	NextKeyMarker      string         `xml:"NextKeyMarker,omitempty"`
	NextUploadIDMarker string         `xml:"NextUploadIdMarker,omitempty"`
	Prefix             string         `xml:"Prefix"`
	Delimiter          string         `xml:"Delimiter,omitempty"`
	MaxUploads         int            `xml:"MaxUploads"`
	IsTruncated        bool           `xml:"IsTruncated"`
	Uploads            []UploadEntry  `xml:"Upload"`
	CommonPrefixes     []CommonPrefix `xml:"CommonPrefixes,omitempty"`
}

// ToListMultipartUploadsResult converts a page of in-progress uploads.
func ToListMultipartUploadsResult(bucket string, q multipart.ListQuery, l *multipart.Listing) ListMultipartUploadsResult {
	out := ListMultipartUploadsResult{
		XMLNS:              Namespace,
		Bucket:             bucket,
		KeyMarker:          q.KeyMarker,
		UploadIDMarker:     q.UploadIDMarker,
		NextKeyMarker:      l.NextKeyMarker,
		NextUploadIDMarker: l.NextUploadIDMarker,
		Prefix:             q.Prefix,
		Delimiter:          q.Delimiter,
		MaxUploads:         q.MaxUploads,
		IsTruncated:        l.IsTruncated,
		Uploads:            make([]UploadEntry, len(l.Uploads)),
		CommonPrefixes:     toCommonPrefixes(l.CommonPrefixes),
	}
	for i, u := range l.Uploads {
		owner := NewOwner(u.Owner)
		out.Uploads[i] = UploadEntry{
			Key:          u.Key,
			UploadID:     u.ID,
			Initiator:    owner,
			Owner:        owner,
			StorageClass: "STANDARD",
			Initiated:    FormatTime(u.Initiated),
		}
	}
	return out
}

// --- Key-value ---

// KeyEntry is one key in a KeyListResponse.
type KeyEntry struct {
	Key        string `json:"key"`
	ModifiedAt string `json:"modified_at"`
}

// KeyListResponse is the JSON body of a key listing.
type KeyListResponse struct {
	Index       string     `json:"index"`
	Keys        []KeyEntry `json:"keys"`
	IsTruncated bool       `json:"is_truncated"`
	NextAfter   string     `json:"next_after,omitempty"`
}

// ToKeyListResponse converts a page of entries.
func ToKeyListResponse(index string, entries []kv.Entry, truncated bool) KeyListResponse {
	out := KeyListResponse{Index: index, Keys: make([]KeyEntry, len(entries)), IsTruncated: truncated}
	for i, e := range entries {
		out.Keys[i] = KeyEntry{Key: e.Key, ModifiedAt: e.ModifiedAt.UTC().Format(time.RFC3339)}
	}
	if truncated && len(entries) > 0 {
		out.NextAfter = entries[len(entries)-1].Key
	}
	return out
}
