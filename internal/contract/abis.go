package contract

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// The four protocol ABIs. These are a fixed external contract surface: any
// change to the deployed contracts' ABI is a breaking change to this client.

// MarketABI is the ABI of one deployed binary-outcome market.
const MarketABI = `[
	{"type":"function","name":"question","inputs":[],"outputs":[{"name":"","type":"string"}],"stateMutability":"view"},
	{"type":"function","name":"closeTime","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"createTime","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"closedAt","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"creator","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"oracle","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"marketAMM","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"feeBPS","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"resolveDelay","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"state","inputs":[],"outputs":[{"name":"","type":"uint8"}],"stateMutability":"view"},
	{"type":"function","name":"getOutcomes","inputs":[],"outputs":[{"name":"names","type":"string[]"},{"name":"totalShares","type":"uint256[]"},{"name":"availableShares","type":"uint256[]"}],"stateMutability":"view"},
	{"type":"function","name":"getPoolData","inputs":[],"outputs":[{"name":"balance","type":"uint256"},{"name":"liquidity","type":"uint256"},{"name":"totalAvailableShares","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getOutcomePrice","inputs":[{"name":"outcomeIndex","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getResolvedOutcomeIndex","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getUserOutcomeShares","inputs":[{"name":"user","type":"address"},{"name":"outcomeIndex","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getUserLiquidityShares","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getClaimableFees","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"addLiquidity","inputs":[{"name":"deadline","type":"uint256"}],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"removeLiquidity","inputs":[{"name":"shares","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"buyShares","inputs":[{"name":"outcomeIndex","type":"uint256"},{"name":"minShares","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[],"stateMutability":"payable"},
	{"type":"function","name":"sellShares","inputs":[{"name":"outcomeIndex","type":"uint256"},{"name":"shares","type":"uint256"},{"name":"minAmount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"closeMarket","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"resolveMarket","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"claimFees","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"claimLiquidity","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"claimRewards","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"LiquidityAdded","inputs":[{"name":"provider","type":"address","indexed":true},{"name":"liquidityShares","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"LiquidityRemoved","inputs":[{"name":"provider","type":"address","indexed":true},{"name":"liquidityShares","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"SharesBought","inputs":[{"name":"buyer","type":"address","indexed":true},{"name":"outcomeIndex","type":"uint256","indexed":true},{"name":"shares","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"fee","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"SharesSold","inputs":[{"name":"seller","type":"address","indexed":true},{"name":"outcomeIndex","type":"uint256","indexed":true},{"name":"shares","type":"uint256","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"fee","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"MarketClosed","inputs":[{"name":"timestamp","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"MarketResolved","inputs":[{"name":"outcomeIndex","type":"uint256","indexed":true}],"anonymous":false},
	{"type":"event","name":"FeesClaimed","inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"LiquidityClaimed","inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"RewardsClaimed","inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"error","name":"DeadlinePassed","inputs":[{"name":"deadline","type":"uint256"},{"name":"blockTime","type":"uint256"}]},
	{"type":"error","name":"MarketCloseTimeNotPassed","inputs":[{"name":"closeTime","type":"uint256"}]},
	{"type":"error","name":"MarketNotOpen","inputs":[{"name":"state","type":"uint8"}]},
	{"type":"error","name":"MarketNotClosed","inputs":[{"name":"state","type":"uint8"}]},
	{"type":"error","name":"MarketNotResolved","inputs":[]},
	{"type":"error","name":"ResolveDelayNotElapsed","inputs":[{"name":"resolvableAt","type":"uint256"}]},
	{"type":"error","name":"InvalidOutcomeIndex","inputs":[{"name":"index","type":"uint256"},{"name":"outcomeCount","type":"uint256"}]},
	{"type":"error","name":"MinimumSharesNotMet","inputs":[{"name":"minShares","type":"uint256"},{"name":"actual","type":"uint256"}]},
	{"type":"error","name":"MinimumAmountNotMet","inputs":[{"name":"minAmount","type":"uint256"},{"name":"actual","type":"uint256"}]},
	{"type":"error","name":"InsufficientShares","inputs":[{"name":"requested","type":"uint256"},{"name":"available","type":"uint256"}]},
	{"type":"error","name":"NothingToClaim","inputs":[{"name":"account","type":"address"}]}
]`

// MarketAMMABI is the ABI of the pricing contract. Every function is pure:
// quote calls are side-effect free and safe to issue speculatively.
const MarketAMMABI = `[
	{"type":"function","name":"getBuyShares","inputs":[{"name":"liquidity","type":"uint256"},{"name":"outcomeShares","type":"uint256[]"},{"name":"outcomeIndex","type":"uint256"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"shares","type":"uint256"}],"stateMutability":"pure"},
	{"type":"function","name":"getSellShares","inputs":[{"name":"liquidity","type":"uint256"},{"name":"outcomeShares","type":"uint256[]"},{"name":"outcomeIndex","type":"uint256"},{"name":"shares","type":"uint256"}],"outputs":[{"name":"amount","type":"uint256"}],"stateMutability":"pure"},
	{"type":"function","name":"getOutcomePrice","inputs":[{"name":"liquidity","type":"uint256"},{"name":"outcomeShares","type":"uint256[]"},{"name":"outcomeIndex","type":"uint256"}],"outputs":[{"name":"price","type":"uint256"}],"stateMutability":"pure"},
	{"type":"function","name":"getAddLiquidityQuote","inputs":[{"name":"liquidity","type":"uint256"},{"name":"outcomeShares","type":"uint256[]"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"liquidityShares","type":"uint256"}],"stateMutability":"pure"},
	{"type":"function","name":"getRemoveLiquidityQuote","inputs":[{"name":"liquidity","type":"uint256"},{"name":"outcomeShares","type":"uint256[]"},{"name":"liquidityShares","type":"uint256"}],"outputs":[{"name":"amount","type":"uint256"}],"stateMutability":"pure"},
	{"type":"error","name":"InsufficientLiquidity","inputs":[]},
	{"type":"error","name":"InvalidOutcomeCount","inputs":[{"name":"count","type":"uint256"}]}
]`

// MarketFactoryABI is the ABI of the upgradeable factory proxy.
const MarketFactoryABI = `[
	{"type":"function","name":"initialize","inputs":[{"name":"owner","type":"address"},{"name":"marketImplementation","type":"address"},{"name":"marketAMMImplementation","type":"address"},{"name":"oracleImplementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"createMarket","inputs":[{"name":"question","type":"string"},{"name":"outcomeNames","type":"string[]"},{"name":"closeTime","type":"uint256"},{"name":"resolveDelay","type":"uint256"},{"name":"feeBPS","type":"uint256"}],"outputs":[{"name":"market","type":"address"}],"stateMutability":"payable"},
	{"type":"function","name":"getMarketCount","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"getMarket","inputs":[{"name":"index","type":"uint256"}],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"marketImplementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"marketAMMImplementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"oracleImplementation","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"transferOwnership","inputs":[{"name":"newOwner","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setMarketImplementation","inputs":[{"name":"implementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setMarketAMMImplementation","inputs":[{"name":"implementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setOracleImplementation","inputs":[{"name":"implementation","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"event","name":"MarketCreated","inputs":[{"name":"creator","type":"address","indexed":true},{"name":"market","type":"address","indexed":true},{"name":"index","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"event","name":"OwnershipTransferred","inputs":[{"name":"previousOwner","type":"address","indexed":true},{"name":"newOwner","type":"address","indexed":true}],"anonymous":false},
	{"type":"error","name":"OnlyBinaryMarketSupported","inputs":[]},
	{"type":"error","name":"InvalidQuestionLength","inputs":[{"name":"length","type":"uint256"}]},
	{"type":"error","name":"InvalidCloseTime","inputs":[{"name":"closeTime","type":"uint256"}]},
	{"type":"error","name":"InvalidResolveDelay","inputs":[{"name":"resolveDelay","type":"uint256"}]},
	{"type":"error","name":"InvalidFeeBPS","inputs":[{"name":"feeBPS","type":"uint256"}]},
	{"type":"error","name":"OnlyOwner","inputs":[{"name":"caller","type":"address"}]}
]`

// CentralizedOracleABI is the ABI of the default oracle implementation.
const CentralizedOracleABI = `[
	{"type":"function","name":"initialize","inputs":[{"name":"owner","type":"address"},{"name":"market","type":"address"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"setOutcome","inputs":[{"name":"outcomeIndex","type":"uint256"}],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"getOutcome","inputs":[],"outputs":[{"name":"outcomeIndex","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"isResolved","inputs":[],"outputs":[{"name":"","type":"bool"}],"stateMutability":"view"},
	{"type":"event","name":"OutcomeSet","inputs":[{"name":"outcomeIndex","type":"uint256","indexed":true}],"anonymous":false},
	{"type":"error","name":"OnlyOracleOwner","inputs":[{"name":"caller","type":"address"}]},
	{"type":"error","name":"OutcomeNotSet","inputs":[]},
	{"type":"error","name":"OutcomeAlreadySet","inputs":[{"name":"outcomeIndex","type":"uint256"}]},
	{"type":"error","name":"InvalidOutcome","inputs":[{"name":"outcomeIndex","type":"uint256"}]}
]`

// Parsed forms, resolved once at package init.
var (
	Market    = mustParseABI("Market", MarketABI)
	MarketAMM = mustParseABI("MarketAMM", MarketAMMABI)
	Factory   = mustParseABI("MarketFactory", MarketFactoryABI)
	Oracle    = mustParseABI("CentralizedOracle", CentralizedOracleABI)
)

func mustParseABI(name, raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("contract: parsing %s ABI: %v", name, err))
	}
	return parsed
}
