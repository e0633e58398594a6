// Package contracts carries the fixed ABI surface the gateway talks to.
package contracts

// ERC20ABI is the subset of EIP-20 the mint workflow needs.
const ERC20ABI = `[
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"account","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"allowance","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"approve","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]},
  {"name":"transferFrom","type":"function","stateMutability":"nonpayable",
   "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"value","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

// NFTABI covers both collection contracts. The fee getters revert on the
// free-mint contract and are simply never called there.
const NFTABI = `[
  {"name":"mint","type":"function","stateMutability":"nonpayable",
   "inputs":[],"outputs":[]},
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"tokenOfOwnerByIndex","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"},{"name":"index","type":"uint256"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"tokenURI","type":"function","stateMutability":"view",
   "inputs":[{"name":"tokenId","type":"uint256"}],
   "outputs":[{"name":"","type":"string"}]},
  {"name":"imageURI","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"name":"HAIR_TKN_FEE","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"name":"MAX_TKN_FEE","type":"function","stateMutability":"view",
   "inputs":[],"outputs":[{"name":"","type":"uint256"}]}
]`
