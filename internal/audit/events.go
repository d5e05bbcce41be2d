package audit

// Standard event types recorded by QuickServe Legal. The ledger stores
// whatever string a caller supplies; these constants are the conventional
// vocabulary, namespaced as dotted category.action pairs. PNSA events cover
// walk-in processing at postal branch counters.
const (
	// User lifecycle
	EventUserRegistered = "user.registered"
	EventUserLogin      = "user.login"
	EventUserLogout     = "user.logout"
	EventUserVerified   = "user.verified"

	// Document lifecycle
	EventDocumentUploaded     = "document.uploaded"
	EventDocumentHashComputed = "document.hash_computed"
	EventDocumentServed       = "document.served"
	EventDocumentDownloaded   = "document.downloaded"
	EventDocumentExpired      = "document.expired"

	// Digital signing
	EventSignatureRequested        = "signature.requested"
	EventSignaturePlaceholderAdded = "signature.placeholder_added"
	EventSignatureCompleted        = "signature.completed"
	EventSignatureFailed           = "signature.failed"

	// Signing certificates
	EventCertificateRegistered  = "certificate.registered"
	EventCertificateActivated   = "certificate.activated"
	EventCertificateDeactivated = "certificate.deactivated"
	EventCertificateRevoked     = "certificate.revoked"
	EventCertificateExpired     = "certificate.expired"

	// Notifications
	EventNotificationSent         = "notification.sent"
	EventNotificationReminderSent = "notification.reminder_sent"

	// Email delivery tracking
	EventEmailStatusUpdated = "email.status_updated"
	EventEmailDelivered     = "email.delivered"
	EventEmailOpened        = "email.opened"
	EventEmailClicked       = "email.clicked"
	EventEmailBounced       = "email.bounced"
	EventEmailFailed        = "email.failed"

	// System-generated artifacts
	EventProofOfServiceGenerated   = "system.proof_of_service_generated"
	EventCourtCertificateGenerated = "system.court_certificate_generated"
	EventStampedPDFGenerated       = "system.stamped_pdf_generated"

	// Branch walk-in processing
	EventPNSAOperatorLogin       = "pnsa.operator_login"
	EventPNSAOperatorLogout      = "pnsa.operator_logout"
	EventPNSADocumentScanned     = "pnsa.document_scanned"
	EventPNSADocumentReviewed    = "pnsa.document_reviewed"
	EventPNSADocumentServed      = "pnsa.document_served"
	EventPNSAConfirmationPrinted = "pnsa.confirmation_printed"
	EventPNSAServiceFeeRecorded  = "pnsa.service_fee_recorded"
)
