package ir

// Receipt status values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Receipt is the journal record of one executed transaction.
// Failed transactions are journaled too; their account writes are not.
type Receipt struct {
	ID            string        `json:"id"`             // Content-addressed hash of the message
	Seq           int64         `json:"seq"`            // Logical clock
	CorrelationID string        `json:"correlation_id"` // UUIDv7, for matching log lines
	Handler       string        `json:"handler"`        // "initialize", "mutate", or "" if undecodable
	ProgramID     Pubkey        `json:"program_id"`
	Accounts      []AccountMeta `json:"accounts"`
	Data          []byte        `json:"data"`
	Signers       []Pubkey      `json:"signers"` // Verified signers only
	Status        string        `json:"status"`  // StatusOK or StatusFailed
	ErrorKind     ErrorKind     `json:"error_kind,omitempty"`
	ErrorMessage  string        `json:"error_message,omitempty"`
	Logs          []string      `json:"logs"`
	Result        IRObject      `json:"result"`
	ComputeUnits  uint64        `json:"compute_units"`
}

// OK reports whether the transaction committed.
func (r Receipt) OK() bool {
	return r.Status == StatusOK
}

// Account is a ledger entry as the host stores it.
// Owner is the program that controls Data; wallets are owned by SystemID.
type Account struct {
	Address    Pubkey `json:"address"`
	Owner      Pubkey `json:"owner"`
	Lamports   uint64 `json:"lamports"`
	Data       []byte `json:"data"`
	UpdatedSeq int64  `json:"updated_seq"`
}

// Exists reports whether the account holds lamports or data.
// An empty slot is indistinguishable from a missing row.
func (a Account) Exists() bool {
	return a.Lamports > 0 || len(a.Data) > 0
}

// Clone returns a deep copy so the runtime's working set never aliases
// the caller's buffers.
func (a Account) Clone() Account {
	c := a
	if a.Data != nil {
		c.Data = append([]byte(nil), a.Data...)
	}
	return c
}
