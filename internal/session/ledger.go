package session

type ledgerKey struct {
	participantID string
	questionIndex int
}

// Ledger is the append-only set of answer records of one session.
// It enforces at most one record per (participant, question) on its own,
// independent of the caller's locking.
type Ledger struct {
	records []AnswerRecord
	index   map[ledgerKey]int
}

func newLedger() *Ledger {
	return &Ledger{index: make(map[ledgerKey]int)}
}

// Has reports whether a record exists for the pair.
func (l *Ledger) Has(participantID string, questionIndex int) bool {
	_, ok := l.index[ledgerKey{participantID, questionIndex}]
	return ok
}

// Append stores rec unless one already exists for the same pair.
func (l *Ledger) Append(rec AnswerRecord) error {
	key := ledgerKey{rec.ParticipantID, rec.QuestionIndex}
	if _, ok := l.index[key]; ok {
		return ErrDuplicateAnswer
	}
	l.index[key] = len(l.records)
	l.records = append(l.records, rec)
	return nil
}

// Records returns a copy of every record in append order.
func (l *Ledger) Records() []AnswerRecord {
	out := make([]AnswerRecord, len(l.records))
	copy(out, l.records)
	return out
}

// CountFor returns how many records exist for a question.
func (l *Ledger) CountFor(questionIndex int) int {
	n := 0
	for _, r := range l.records {
		if r.QuestionIndex == questionIndex {
			n++
		}
	}
	return n
}

// Len is the number of records.
func (l *Ledger) Len() int { return len(l.records) }
