package enums

// UploadStatus tracks the background image upload attached to a listing.
type UploadStatus string

const (
	UploadStatusNone       UploadStatus = "none"
	UploadStatusPending    UploadStatus = "pending"
	UploadStatusProcessing UploadStatus = "processing"
	UploadStatusCompleted  UploadStatus = "completed"
	UploadStatusFailed     UploadStatus = "failed"
)

func (u UploadStatus) IsValid() bool {
	switch u {
	case UploadStatusNone, UploadStatusPending, UploadStatusProcessing, UploadStatusCompleted, UploadStatusFailed:
		return true
	}
	return false
}
