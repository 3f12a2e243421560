package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	CacheKeyPrefixIngest = "ingest:"
)

const (
	DefaultProcessedTopic = "processed_emails"
)

const (
	ShutdownTimeout = 5 * time.Second
)

const (
	// DefaultMaxFileSize caps a single email part.
	DefaultMaxFileSize = 25 * 1024 * 1024
	// DefaultMaxTotalSize caps the sum of all parts in one email.
	DefaultMaxTotalSize = 50 * 1024 * 1024
)

const (
	DefaultTokenTTL = 900 * time.Second
)

const (
	// WebImageMaxWidth caps the width of the web variant. Sources
	// narrower than this are never upscaled.
	WebImageMaxWidth = 1600
	WebImageQuality  = 85

	// ThumbImageMaxDim bounds both dimensions of the thumb variant.
	ThumbImageMaxDim  = 320
	ThumbImageQuality = 75
)

const (
	StorageDriverDisk = "disk"
	StorageDriverS3   = "s3"
)

const (
	VariantOriginal = "original"
	VariantWeb      = "web"
	VariantThumb    = "thumb"
)

const (
	AssetKindInline     = "inline"
	AssetKindAttachment = "attachment"
)

const (
	DispositionInline     = "inline"
	DispositionAttachment = "attachment"
)

const (
	FallbackAllow = "allow"
	FallbackDeny  = "deny"
)
