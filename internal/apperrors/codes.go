package apperrors

// Code is a machine-readable error code. Callback responses carry only this.
type Code string

const (
	CodeInternal     Code = "INTERNAL"
	CodeUnauthorized Code = "UNAUTHORIZED"
	CodeNotOwner     Code = "NOT_OWNER"
	CodeAdminOnly    Code = "ADMIN_ONLY"

	// Campaign input
	CodeCampaignFieldsMissing   Code = "CAMPAIGN_FIELDS_MISSING"
	CodeCampaignImageMissing    Code = "CAMPAIGN_IMAGE_MISSING"
	CodeCampaignNoCapabilities  Code = "CAMPAIGN_NO_CAPABILITIES"
	CodeCampaignInvalidType     Code = "CAMPAIGN_INVALID_TYPE"
	CodeOwnerUnverified         Code = "OWNER_UNVERIFIED"
	CodeCampaignNotFound        Code = "CAMPAIGN_NOT_FOUND"
	CodeCampaignBuilt           Code = "CAMPAIGN_BUILT"
	CodeCampaignConcurrentWrite Code = "CAMPAIGN_CONCURRENT_WRITE"

	// Review
	CodeReviewInvalidDecision Code = "REVIEW_INVALID_DECISION"
	CodeReviewNotPending      Code = "REVIEW_NOT_PENDING"

	// Build
	CodeBuildAlreadyBuilt    Code = "BUILD_ALREADY_BUILT"
	CodeBuildInFlight        Code = "BUILD_IN_FLIGHT"
	CodeBuildNotInFlight     Code = "BUILD_NOT_IN_FLIGHT"
	CodeBuildPendingReview   Code = "BUILD_PENDING_REVIEW"
	CodeBuildRejected        Code = "BUILD_REJECTED"
	CodeBuildNotApproved     Code = "BUILD_NOT_APPROVED"
	CodeBuildMissingImages   Code = "BUILD_MISSING_IMAGES"
	CodeBuildFileMissing     Code = "BUILD_FILE_MISSING"
	CodeBuildInvalidStatus   Code = "BUILD_INVALID_STATUS"
	CodeInferenceDispatch    Code = "INFERENCE_DISPATCH_FAILED"
	CodeInferenceUnavailable Code = "INFERENCE_UNAVAILABLE"

	// Images
	CodeImageNotFound        Code = "IMAGE_NOT_FOUND"
	CodeImageTitleMissing    Code = "IMAGE_TITLE_MISSING"
	CodeImageInvalidCategory Code = "IMAGE_INVALID_CATEGORY"
	CodeImageLocked          Code = "IMAGE_LOCKED"

	// Merge
	CodeMergeSameCampaign   Code = "MERGE_SAME_CAMPAIGN"
	CodeMergeNotEligible    Code = "MERGE_NOT_ELIGIBLE"
	CodeMergeWrongType      Code = "MERGE_WRONG_TYPE"
	CodeMergeInvalidOutcome Code = "MERGE_INVALID_OUTCOME"
)
