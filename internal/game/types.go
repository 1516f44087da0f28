package game

// Inbound message types.
const (
	TypeIdentify        = "IDENTIFY"
	TypeRegister        = "REGISTER"
	TypeApproveRoster   = "APPROVE_ROSTER"
	TypeStartRound      = "START_ROUND"
	TypeConfirmScramble = "CONFIRM_SCRAMBLE"
	TypeConfirmTask     = "CONFIRM_TASK"
	TypePause           = "PAUSE"
	TypeResetAll        = "RESET_ALL"
	TypeNextAttempt     = "NEXT_ATTEMPT"
)

// Outbound message types.
const (
	TypeState = "STATE"
	TypeError = "ERROR"
	TypeMe    = "ME"
)

const CodeNameTaken = "NAME_TAKEN"

// StatePayload is the full broadcast snapshot. It never carries device
// tokens.
type StatePayload struct {
	Type        string           `json:"type"`
	Phase       Phase            `json:"phase"`
	ServerNow   int64            `json:"serverNow"`
	Attempts    int              `json:"attempts"`
	Competitors []CompetitorView `json:"competitors"`
	Pairs       []Pair           `json:"pairs"`
	UnpairedID  *string          `json:"unpairedId"`
	Jobs        []Job            `json:"scrambleJobs"`
}

type CompetitorView struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Attempts     []*int64 `json:"attempts"` // null for unset slots
	AttemptsText []string `json:"attemptsText"`
	Live         LiveView `json:"live"`
}

// MePayload answers IDENTIFY; MyID is null when the token is unbound.
type MePayload struct {
	Type string  `json:"type"`
	MyID *string `json:"myId"`
}

type ErrorPayload struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
}
