package domain

// Checkpoint records how far backward pagination has progressed for an
// account. OldestSignature is the resumability anchor: an interrupted
// download resumes walking backward from it rather than from the newest
// signature. Corresponds to the completed_accounts table.
type Checkpoint struct {
	Account         string
	Completed       bool
	OldestBlockTime int64
	OldestSignature string
}
