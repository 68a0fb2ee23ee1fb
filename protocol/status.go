package protocol

// Status lines returned as the final message of every command.
const (
	StatusStored        = "File received by server"
	StatusStoreFailed   = "Failed to receive file"
	StatusFetched       = "File downloaded"
	StatusFetchFailed   = "Failed to download file"
	StatusRemoved       = "File removed"
	StatusRemoveFailed  = "Failed to remove file"
	StatusListed        = "File paths saved as file"
	StatusListFailed    = "Failed to get files"
	StatusArchived      = "Tar file downloaded"
	StatusArchiveFailed = "Failed to download tar file"
	StatusInvalid       = "Invalid command"
)

var outcomes = map[Verb][2]string{
	Store:   {StatusStored, StatusStoreFailed},
	Fetch:   {StatusFetched, StatusFetchFailed},
	Delete:  {StatusRemoved, StatusRemoveFailed},
	List:    {StatusListed, StatusListFailed},
	Archive: {StatusArchived, StatusArchiveFailed},
}

// Success returns the status line of a successful Verb.
func (v Verb) Success() string { return outcomes[v][0] }

// Failure returns the status line of a failed Verb.
func (v Verb) Failure() string {
	if s, ok := outcomes[v]; ok {
		return s[1]
	}
	return StatusInvalid
}

// Succeeded returns whether status reports success of the Verb.
func (v Verb) Succeeded(status string) bool {
	s, ok := outcomes[v]
	return ok && status == s[0]
}
