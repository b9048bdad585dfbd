package domain

// DisplayStatus is the human-facing quote state. It is always derived from
// the record's fields, never stored; every listing, counter and screen must
// go through EvaluateStatus so the same record can never show two different
// states in two places.
type DisplayStatus string

const (
	DisplayPending          DisplayStatus = "pending"
	DisplayResponded        DisplayStatus = "responded"
	DisplayAwaitingDocument DisplayStatus = "awaiting_document"
	DisplayCompleted        DisplayStatus = "completed"
	DisplayCancelled        DisplayStatus = "cancelled"
	DisplayUnknown          DisplayStatus = "unknown"
)

// EvaluateStatus derives the display status of a quote. Precedence is
// strict, first match wins:
//
//  1. either side rejected            -> Cancelled
//  2. policy document uploaded        -> Completed
//  3. card submitted, doc pending     -> AwaitingDocument
//  4. staff responded, customer quiet -> Responded
//  5. untouched                       -> Pending
//
// Cancellation dominates everything: a cancelled quote must never read as
// completed or awaiting payment even if those flags were set earlier.
// Document presence dominates payment-pending because the staff upload is
// the ground truth of completion.
func EvaluateStatus(q *Quote) DisplayStatus {
	switch {
	case isRejected(q):
		return DisplayCancelled
	case hasDocument(q):
		return DisplayCompleted
	case cardSubmitted(q) && q.AwaitingProcessing && !hasDocument(q):
		return DisplayAwaitingDocument
	case q.Status == QuoteResponded && q.CustomerStatus == nil:
		return DisplayResponded
	case q.Status == QuotePending:
		return DisplayPending
	default:
		return DisplayUnknown
	}
}

// IsActive reports whether neither side has rejected the quote.
func IsActive(q *Quote) bool { return !isRejected(q) }

// IsCancelled is the complement of IsActive.
func IsCancelled(q *Quote) bool { return isRejected(q) }

// IsPending reports an active quote still waiting for a staff response.
func IsPending(q *Quote) bool { return q.Status == QuotePending && IsActive(q) }

// IsAwaitingPayment reports an active quote whose card was submitted but
// whose policy document has not been uploaded yet.
func IsAwaitingPayment(q *Quote) bool {
	return cardSubmitted(q) && q.AwaitingProcessing && !hasDocument(q) && IsActive(q)
}

// IsCompleted reports an active quote with its policy document uploaded.
func IsCompleted(q *Quote) bool { return hasDocument(q) && IsActive(q) }

// RequiresDocumentUpload reports a quote the back office owes a document:
// paid, active, document still missing.
func RequiresDocumentUpload(q *Quote) bool {
	return IsActive(q) && !hasDocument(q) && cardSubmitted(q) && q.AwaitingProcessing
}

func isRejected(q *Quote) bool {
	return q.Status == QuoteRejected ||
		(q.CustomerStatus != nil && *q.CustomerStatus == CustomerRejected)
}

func hasDocument(q *Quote) bool {
	return q.DocumentURL != nil && *q.DocumentURL != ""
}

func cardSubmitted(q *Quote) bool {
	return q.CustomerStatus != nil && *q.CustomerStatus == CustomerCardSubmitted
}
