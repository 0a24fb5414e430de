package model

// StoredFile describes an image kept in one of the user's namespaces
type StoredFile struct {
	Name      string `json:"name"`
	Kind      Kind   `json:"kind"`
	URL       string `json:"url"`
	ThumbURL  string `json:"thumbUrl,omitempty"`
	MimeType  string `json:"mimeType"`
	Size      int64  `json:"size"`
	ThumbSize int64  `json:"-"`
	CreatedAt int64  `json:"createdAt"` // unix milliseconds
}
