package cqrskit

import (
	"context"
	"fmt"
)

// Fixtures shared across this package's test files: a small bank-account
// domain exercising the aggregate/command/event surfaces, following the
// scenarios spec §8 names (S1-S6).

// OpenAccount is the command that creates a BankAccount.
type OpenAccount struct {
	BaseCommand
	Owner string
}

// DepositMoney adds funds to an existing BankAccount.
type DepositMoney struct {
	BaseCommand
	Amount int64
}

// WithdrawMoney removes funds from an existing BankAccount, failing with a
// DomainFault if the account would go negative.
type WithdrawMoney struct {
	BaseCommand
	Amount int64
}

// AccountOpened is emitted once, the first event in every account's
// stream.
type AccountOpened struct {
	Owner string
}

// MoneyDeposited is emitted once per successful deposit.
type MoneyDeposited struct {
	Amount int64
}

// MoneyWithdrawn is emitted once per successful withdrawal.
type MoneyWithdrawn struct {
	Amount int64
}

// BankAccount is the fixture aggregate root.
type BankAccount struct {
	AggregateRoot[BankAccount]
	Owner   string
	Balance int64
}

// NewBankAccount builds an Init'd, empty BankAccount with its command and
// applier routing tables wired up.
func NewBankAccount() *BankAccount {
	a := &BankAccount{}
	a.Init(a)
	RegisterCommandHandler(&a.AggregateRoot, (*BankAccount).handleOpen)
	RegisterCommandHandler(&a.AggregateRoot, (*BankAccount).handleDeposit)
	RegisterCommandHandler(&a.AggregateRoot, (*BankAccount).handleWithdraw)
	RegisterApplier(&a.AggregateRoot, (*BankAccount).applyOpened)
	RegisterApplier(&a.AggregateRoot, (*BankAccount).applyDeposited)
	RegisterApplier(&a.AggregateRoot, (*BankAccount).applyWithdrawn)
	return a
}

func (a *BankAccount) handleOpen(ctx context.Context, cmd *OpenAccount) error {
	Emit(ctx, &a.AggregateRoot, AccountOpened{Owner: cmd.Owner})
	return nil
}

func (a *BankAccount) handleDeposit(ctx context.Context, cmd *DepositMoney) error {
	Emit(ctx, &a.AggregateRoot, MoneyDeposited{Amount: cmd.Amount})
	return nil
}

func (a *BankAccount) handleWithdraw(ctx context.Context, cmd *WithdrawMoney) error {
	if a.Balance < cmd.Amount {
		return NewDomainFault(a.AggregateID(), "insufficient_funds")
	}
	Emit(ctx, &a.AggregateRoot, MoneyWithdrawn{Amount: cmd.Amount})
	return nil
}

func (a *BankAccount) applyOpened(data AccountOpened) {
	a.Owner = data.Owner
}

func (a *BankAccount) applyDeposited(data MoneyDeposited) {
	a.Balance += data.Amount
}

func (a *BankAccount) applyWithdrawn(data MoneyWithdrawn) {
	a.Balance -= data.Amount
}

// RestoreSnapshot and SnapshotState implement SnapshotRestorer.
func (a *BankAccount) RestoreSnapshot(state any) {
	snap := state.(bankAccountSnapshot)
	a.Owner = snap.Owner
	a.Balance = snap.Balance
}

func (a *BankAccount) SnapshotState() any {
	return bankAccountSnapshot{Owner: a.Owner, Balance: a.Balance}
}

type bankAccountSnapshot struct {
	Owner   string
	Balance int64
}

// newOpenAccount/newDepositMoney/newWithdrawMoney build commands pre-stamped
// with a fresh command id targeting aggregateID, as context-propagation
// middleware would before handing them to the bus.
func newOpenAccount(aggregateID ID, owner string) *OpenAccount {
	return &OpenAccount{BaseCommand: NewBaseCommand(aggregateID), Owner: owner}
}

func newDepositMoney(aggregateID ID, amount int64) *DepositMoney {
	return &DepositMoney{BaseCommand: NewBaseCommand(aggregateID), Amount: amount}
}

func newWithdrawMoney(aggregateID ID, amount int64) *WithdrawMoney {
	return &WithdrawMoney{BaseCommand: NewBaseCommand(aggregateID), Amount: amount}
}

// balanceProcessor is a fixture EventProcessor/projection maintaining a
// running balance per aggregate id from AccountOpened/MoneyDeposited
// events, with one query handler for the current balance.
type balanceProcessor struct {
	ProcessorBase
	balances map[ID]int64
	failNext bool
}

func newBalanceProcessor() *balanceProcessor {
	p := &balanceProcessor{balances: make(map[ID]int64)}
	p.Init()
	RegisterProcessorHandler(&p.ProcessorBase, p, (*balanceProcessor).onOpened)
	RegisterProcessorHandler(&p.ProcessorBase, p, (*balanceProcessor).onDeposited)
	return p
}

func (p *balanceProcessor) onOpened(ctx context.Context, event Event[AccountOpened]) error {
	if p.failNext {
		p.failNext = false
		return fmt.Errorf("balanceProcessor: forced failure")
	}
	p.balances[event.AggregateID] = 0
	return nil
}

func (p *balanceProcessor) onDeposited(ctx context.Context, event Event[MoneyDeposited]) error {
	p.balances[event.AggregateID] += event.Data.Amount
	return nil
}

// BalanceQuery asks a balanceProcessor-backed query handler for an
// account's current balance.
type BalanceQuery struct {
	BaseQuery
	AggregateID ID
}

// upcasting fixtures: three successive schema versions of one logical
// event, used by the upcasting pipeline tests (spec S3).
type accountOpenedV1 struct {
	OwnerName string
}

type accountOpenedV2 struct {
	Owner string
}

type accountOpenedV3 struct {
	Owner       string
	DisplayName string
}
