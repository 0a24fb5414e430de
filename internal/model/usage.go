package model

import "time"

// Kind is a metered storage namespace
type Kind string

const (
	KindUploads   Kind = "uploads"
	KindGenerated Kind = "generated"
)

// Metered reports whether k is one of the namespaces counted against the quota
func (k Kind) Metered() bool {
	return k == KindUploads || k == KindGenerated
}

type Usage struct {
	UploadsBytes   int64     `json:"uploadsBytes"`
	GeneratedBytes int64     `json:"generatedBytes"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

func (u Usage) Total() int64 {
	return u.UploadsBytes + u.GeneratedBytes
}

// QuotaOverride replaces the default quota for a single user
type QuotaOverride struct {
	QuotaBytes int64 `json:"quotaBytes"`
}

// Quota describes the limit that applies to a user. Unlimited users (admins)
// report a zero Bytes value.
type Quota struct {
	Bytes     int64 `json:"bytes"`
	Unlimited bool  `json:"unlimited"`
	Remaining int64 `json:"remaining"`
}
