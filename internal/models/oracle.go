package models

type OracleMode string

const (
	ModeEntry OracleMode = "entry"
	ModeExit  OracleMode = "exit"
)

type Action string

const (
	ActionBuy  Action = "buy"
	ActionSell Action = "sell"
	ActionHold Action = "hold"
)

// ErrorSymbol: символ-заглушка в hold-решении при сбое оракула.
const ErrorSymbol = "ERROR"

// MarketSnapshot: то что видит оракул по одному символу.
type MarketSnapshot struct {
	Symbol  string    `json:"s"`
	Price   float64   `json:"p"`
	Change  float64   `json:"c"`
	History []float64 `json:"h"`
}

type OracleRequest struct {
	Mode     OracleMode
	Strategy Strategy
	Market   []MarketSnapshot
}

type Decision struct {
	Symbol     string   `json:"symbol"`
	Action     Action   `json:"action"`
	Reasoning  string   `json:"reasoning"`
	StopLoss   *float64 `json:"stopLoss,omitempty"`
	TakeProfit *float64 `json:"takeProfit,omitempty"`
}

type ResultKind int

const (
	ResultDecision ResultKind = iota
	ResultMalformed
	ResultUnavailable
)

func (k ResultKind) String() string {
	switch k {
	case ResultDecision:
		return "decision"
	case ResultMalformed:
		return "malformed"
	case ResultUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// OracleResult: либо решение, либо одна из двух ошибок.
// Для ошибок Decision всегда hold с символом ERROR.
type OracleResult struct {
	Kind     ResultKind
	Decision Decision
	Err      error
}

func DecisionResult(d Decision) OracleResult {
	return OracleResult{Kind: ResultDecision, Decision: d}
}

func MalformedResult(err error) OracleResult {
	return OracleResult{Kind: ResultMalformed, Decision: errorHold(err), Err: err}
}

func UnavailableResult(err error) OracleResult {
	return OracleResult{Kind: ResultUnavailable, Decision: errorHold(err), Err: err}
}

func errorHold(err error) Decision {
	d := Decision{Symbol: ErrorSymbol, Action: ActionHold}
	if err != nil {
		d.Reasoning = err.Error()
	}
	return d
}
