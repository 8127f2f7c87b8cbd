package auction

import (
	"github.com/handshake-org/hswd/coindb"
	"github.com/handshake-org/hswd/covenant"
	"github.com/handshake-org/hswd/funding"
	"github.com/handshake-org/hswd/hnswire"
	"github.com/handshake-org/hswd/namestate"
)

// isUpdatable reports whether the owner covenant permits the
// registered-name actions (update, renew, transfer).
func isUpdatable(t covenant.Type) bool {
	switch t {
	case covenant.TypeRegister, covenant.TypeUpdate, covenant.TypeRenew,
		covenant.TypeFinalize:

		return true
	}

	return false
}

// register emits the REGISTER that turns a won auction (or matured claim)
// into a registered name. The output pays the second price: the winner's
// lockup surplus above ns.Value flows back through change.
func (e *Engine) register(name string, nameHash []byte,
	ns *namestate.NameState, owner *coindb.Coin, resource []byte,
	account, height uint32) (*funding.Builder, error) {

	if !owner.Confirmed() || owner.Height < ns.Height {
		return nil, ErrNotYetMature
	}
	if owner.Covenant.Type == covenant.TypeClaim &&
		height < owner.Height+e.params.CoinbaseMaturity {

		return nil, ErrNotYetMature
	}
	if len(resource) > e.params.MaxResourceSize {
		return nil, ErrResourceTooLarge
	}

	renewal, err := e.chain.GetRenewalBlock()
	if err != nil {
		return nil, err
	}
	cov, err := covenant.NewRegister(
		nameHash, ns.Height, resource, renewal[:],
	)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(ns.Value, owner.Address, cov))

	log.Debugf("Built REGISTER for %q: paying %v (second price)",
		name, ns.Value)

	return b, nil
}

// Update publishes a new resource for an owned name. When the owner
// output is still the winning REVEAL (or a claim), this is the epoch's
// first update and delegates to REGISTER.
func (e *Engine) Update(name string, resource []byte, account,
	height uint32) (*funding.Builder, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}

	switch {
	case owner.Covenant.Type == covenant.TypeReveal,
		owner.Covenant.Type == covenant.TypeClaim:

		return e.register(
			name, nameHash, ns, owner, resource, account, height,
		)

	case owner.Covenant.Type == covenant.TypeTransfer:
		return nil, ErrAlreadyTransferring

	case !isUpdatable(owner.Covenant.Type):
		return nil, ErrWrongOwnerCovenant
	}

	if len(resource) > e.params.MaxResourceSize {
		return nil, ErrResourceTooLarge
	}

	cov, err := covenant.NewUpdate(nameHash, ns.Height, resource)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, owner.Address, cov))

	log.Debugf("Built UPDATE for %q: %d resource bytes", name,
		len(resource))

	return b, nil
}

// Renew extends the name's validity, anchored to a fresh renewal block.
func (e *Engine) Renew(name string, account, height uint32) (
	*funding.Builder, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}
	if !isUpdatable(owner.Covenant.Type) {
		return nil, ErrWrongOwnerCovenant
	}
	if !ns.NeedsRenewal(height, e.params) {
		return nil, ErrNotYetMature
	}

	renewal, err := e.chain.GetRenewalBlock()
	if err != nil {
		return nil, err
	}
	cov, err := covenant.NewRenew(nameHash, ns.Height, renewal[:])
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, owner.Address, cov))

	log.Debugf("Built RENEW for %q", name)

	return b, nil
}

// Transfer starts moving the name to the target address. The output stays
// at the current owner address until FINALIZE; the covenant records where
// it is going.
func (e *Engine) Transfer(name string, target hnswire.Address, account,
	height uint32) (*funding.Builder, error) {

	if target.IsNull() {
		return nil, funding.ErrNullAddress
	}

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}
	if owner.Covenant.Type == covenant.TypeTransfer {
		return nil, ErrAlreadyTransferring
	}
	if !isUpdatable(owner.Covenant.Type) {
		return nil, ErrWrongOwnerCovenant
	}

	cov, err := covenant.NewTransfer(
		nameHash, ns.Height, target.Version, target.Hash,
	)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, owner.Address, cov))

	log.Debugf("Built TRANSFER for %q to %v", name, target)

	return b, nil
}

// Cancel reverts a pending transfer by replacing it with an empty UPDATE.
func (e *Engine) Cancel(name string, account, height uint32) (
	*funding.Builder, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}
	if owner.Covenant.Type != covenant.TypeTransfer {
		return nil, ErrNotTransferring
	}

	cov, err := covenant.NewUpdate(nameHash, ns.Height, nil)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, owner.Address, cov))

	log.Debugf("Built CANCEL for %q", name)

	return b, nil
}

// Finalize completes a transfer once the lockup elapsed. The output moves
// to the transfer target recorded in the TRANSFER covenant.
func (e *Engine) Finalize(name string, account, height uint32) (
	*funding.Builder, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}
	if owner.Covenant.Type != covenant.TypeTransfer {
		return nil, ErrNotTransferring
	}
	if height < owner.Height+e.params.TransferLockup {
		return nil, ErrNotYetMature
	}

	transfer, err := covenant.ParseTransfer(owner.Covenant)
	if err != nil {
		return nil, err
	}
	target := hnswire.Address{
		Version: transfer.AddrVersion,
		Hash:    transfer.AddrHash,
	}

	var flags uint8
	if ns.Weak {
		flags |= covenant.FinalizeFlagWeak
	}

	renewal, err := e.chain.GetRenewalBlock()
	if err != nil {
		return nil, err
	}
	cov, err := covenant.NewFinalize(
		nameHash, ns.Height, name, flags, ns.Claimed, ns.Renewals,
		renewal[:],
	)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, target, cov))

	log.Debugf("Built FINALIZE for %q to %v", name, target)

	return b, nil
}

// Revoke burns the name for the remainder of the epoch. Used when the
// owner key may be compromised; the name re-opens once the epoch ends.
func (e *Engine) Revoke(name string, account, height uint32) (
	*funding.Builder, error) {

	nameHash, ns, err := e.nameState(name)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerCoin(ns, height)
	if err != nil {
		return nil, err
	}

	switch owner.Covenant.Type {
	case covenant.TypeRegister, covenant.TypeUpdate, covenant.TypeRenew,
		covenant.TypeTransfer, covenant.TypeFinalize:

	default:
		return nil, ErrWrongOwnerCovenant
	}

	cov, err := covenant.NewRevoke(nameHash, ns.Height)
	if err != nil {
		return nil, err
	}

	b := funding.NewBuilder(account)
	b.AddInput(owner)
	b.AddOutput(hnswire.NewTxOut(owner.Value, owner.Address, cov))

	log.Debugf("Built REVOKE for %q", name)

	return b, nil
}
