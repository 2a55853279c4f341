package srp

import "math/big"

// Group holds the public parameters of an SRP exchange: a large safe
// prime N and a generator g. All protocol arithmetic is modulo N.
type Group struct {
	N *big.Int
	G *big.Int
}

// rfc5054Group2048 is the 2048-bit prime from RFC 5054 appendix A.
const rfc5054Group2048 = "AC6BDB41324A9A9BF166DE5E1389582FAF72B665" +
	"1987EE07FC3192943DB56050A37329CBB4A099ED8193E0757767A13DD52312AB4B0331" +
	"0DCD7F48A9DA04FD50E8083969EDB767B0CF6095179A163AB3661A05FBD5FAAAE82918" +
	"A9962F0B93B855F97993EC975EEAA80D740ADBF4FF747359D041D5C33EA71D281E446B" +
	"14773BCA97B43A23FB801676BD207A436C6481F1D2B9078717461A5B9D32E688F87748" +
	"544523B524B0D57D5EA77A2775D2ECFA032CFBDBF52FB3786160279004E57AE6AF874E" +
	"7303CE53299CCC041C7BC308D82A5698F3A8D0C38271AE35F8E9DBFBB694B5C803D89F" +
	"7AE435DE236D525F54759B65E372FCD68EF20FA7111F9E4AFF73"

// G2048 is the RFC 5054 2048-bit group with generator 2, the only
// group the login endpoints negotiate.
var G2048 = &Group{
	N: mustParseHex(rfc5054Group2048),
	G: big.NewInt(2),
}

func mustParseHex(s string) *big.Int {
	n, ok := new(big.Int).SetString(s, 16)
	if !ok {
		panic("srp: invalid group prime")
	}
	return n
}
