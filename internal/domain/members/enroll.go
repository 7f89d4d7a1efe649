package members

// decideEnrollment resolves a confirm attempt against the member's current
// enrollment state and whether another member of the brand already holds the
// fingerprint id. alreadyDone means the same confirmation landed earlier and
// nothing needs writing.
func decideEnrollment(enrolled bool, current *int64, fingerprintID int64, heldByOther bool) (alreadyDone bool, err error) {
	if enrolled {
		if current != nil && *current == fingerprintID {
			return true, nil
		}
		return false, ErrEnrollmentConflict
	}
	if heldByOther {
		return false, ErrEnrollmentConflict
	}
	return false, nil
}
