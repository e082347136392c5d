package lcd

const (
	ChannelStateOpen = "STATE_OPEN"

	channelsPath    = "/ibc/core/channel/v1/channels"
	denomTracesPath = "/ibc/apps/transfer/v1/denom_traces/"
)

type Counterparty struct {
	PortID    string `json:"port_id"`
	ChannelID string `json:"channel_id"`
}

type Channel struct {
	State          string       `json:"state"`
	Ordering       string       `json:"ordering"`
	Counterparty   Counterparty `json:"counterparty"`
	ConnectionHops []string     `json:"connection_hops"`
	Version        string       `json:"version"`
	PortID         string       `json:"port_id"`
	ChannelID      string       `json:"channel_id"`
}

type PageResponse struct {
	NextKey string `json:"next_key"`
	Total   string `json:"total"`
}

type channelsResponse struct {
	Channels   []Channel    `json:"channels"`
	Pagination PageResponse `json:"pagination"`
}

// DenomTrace is the path a voucher travelled and the denom it started as.
type DenomTrace struct {
	Path      string `json:"path"`
	BaseDenom string `json:"base_denom"`
}

type denomTraceResponse struct {
	DenomTrace DenomTrace `json:"denom_trace"`
}
