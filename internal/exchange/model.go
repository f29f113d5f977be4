package exchange

import (
	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// envelope is the {status, msg, data} wrapper of the /ajax endpoints.
type envelope struct {
	Status interface{}     `json:"status"`
	Msg    string          `json:"msg"`
	Data   json.RawMessage `json:"data"`
}

// ok mirrors the loose status == 1 check; the status arrives as 1 or "1".
func (e *envelope) ok() bool {
	return cast.ToInt(e.Status) == 1
}

// rawTrade is one entry of the trade history listing.
// t: direction, n: quantity, s: amount, c: unix seconds.
type rawTrade struct {
	T string      `json:"t"`
	N interface{} `json:"n"`
	S interface{} `json:"s"`
	C interface{} `json:"c"`
}

type tradePage struct {
	Data struct {
		Datas []rawTrade `json:"datas"`
	} `json:"data"`
}

// buyTag is the direction value the exchange uses for purchases.
const buyTag = "买入"

var balanceSuffixes = []string{"balance", "lock", "rate"}
