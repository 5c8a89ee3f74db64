package wallet

import (
	"testing"
	"time"

	xerrors "IntentWallet/internal/errors"
	"IntentWallet/internal/safe"
	"IntentWallet/internal/units"
)

func TestDecodeLegacySeedBlob(t *testing.T) {
	raw := []byte(`{"default_address_id":"0x9858EfFD232B4033E47d90003D41EC34EcaEda94","seed":"` + abandonSeed + `"}`)
	state, err := DecodeState(raw)
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if state.Version != StateVersion || state.Custodial == nil {
		t.Fatalf("legacy blob should become a custodial state: %+v", state)
	}
	if state.Custodial.Status != CustodialPending || state.Custodial.LegacySeed != abandonSeed {
		t.Fatalf("unexpected custodial state: %+v", state.Custodial)
	}
	if err := state.Validate("agent", KindCustodial); err != nil {
		t.Fatalf("legacy state should validate: %v", err)
	}
}

func TestKindForStateUpgradesLegacyRows(t *testing.T) {
	state, err := DecodeState([]byte(`{"default_address_id":"0x9858EfFD232B4033E47d90003D41EC34EcaEda94","seed":"` + abandonSeed + `"}`))
	if err != nil {
		t.Fatalf("decode legacy: %v", err)
	}
	if got := KindForState(KindNone, state); got != KindCustodial {
		t.Fatalf("none with legacy seed should become custodial, got %s", got)
	}
	if got := KindForState("", state); got != KindCustodial {
		t.Fatalf("empty kind with legacy seed should become custodial, got %s", got)
	}
	if got := KindForState(KindNone, ProviderState{Version: StateVersion}); got != KindNone {
		t.Fatalf("plain none must stay none, got %s", got)
	}
	if got := KindForState(KindSafe, state); got != KindSafe {
		t.Fatalf("a set kind is never rewritten, got %s", got)
	}
}

func TestDecodeRejectsUnversionedAndUnknownVersions(t *testing.T) {
	for _, raw := range []string{`{"safe":{}}`, `{"version":2}`, `not json`} {
		_, err := DecodeState([]byte(raw))
		if xerrors.CodeOf(err) != CodeWalletDataCorrupt {
			t.Fatalf("%s: expected corrupt, got %v", raw, err)
		}
	}
	state, err := DecodeState(nil)
	if err != nil || !state.Empty() {
		t.Fatalf("empty input should decode to an empty state: %+v %v", state, err)
	}
}

func TestEncodeDecodeSafeState(t *testing.T) {
	next := uint64(4)
	state := ProviderState{Safe: &SafeState{
		OwnerWalletID: "wallet_1",
		OwnerAddress:  "0x00000000000000000000000000000000000000Aa",
		SafeAddress:   testSafeAddress.Hex(),
		Status:        safe.StatusModuleEnabled,
		NextNonce:     &next,
	}}
	raw, err := state.Encode()
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	decoded, err := DecodeState(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Safe == nil || decoded.Safe.Status != safe.StatusModuleEnabled || *decoded.Safe.NextNonce != 4 {
		t.Fatalf("unexpected decoded state: %+v", decoded.Safe)
	}
}

func TestValidateSafeStatusRequiresFields(t *testing.T) {
	cases := []struct {
		name  string
		state SafeState
		ok    bool
	}{
		{"not started", SafeState{Status: safe.StatusNotStarted}, true},
		{"owner missing", SafeState{Status: safe.StatusCustodyWalletCreated}, false},
		{"owner present", SafeState{Status: safe.StatusCustodyWalletCreated, OwnerWalletID: "w", OwnerAddress: "0x00000000000000000000000000000000000000Aa"}, true},
		{"safe address missing", SafeState{Status: safe.StatusSafeDeployed, OwnerWalletID: "w", OwnerAddress: "0x00000000000000000000000000000000000000Aa"}, false},
		{"unknown status", SafeState{Status: "half_done"}, false},
	}
	for _, tc := range cases {
		s := tc.state
		err := ProviderState{Version: StateVersion, Safe: &s}.Validate("agent", KindSafe)
		if (err == nil) != tc.ok {
			t.Fatalf("%s: ok=%v err=%v", tc.name, tc.ok, err)
		}
	}
}

func TestValidateRejectsMismatchedVariant(t *testing.T) {
	state := ProviderState{Version: StateVersion, Custodial: &CustodialState{Status: CustodialCreated}}
	if err := state.Validate("agent", KindSafe); xerrors.CodeOf(err) != CodeWalletDataCorrupt {
		t.Fatalf("expected corrupt for mismatched variant, got %v", err)
	}
	state.Safe = &SafeState{Status: safe.StatusNotStarted}
	if err := state.Validate("agent", KindCustodial); xerrors.CodeOf(err) != CodeWalletDataCorrupt {
		t.Fatalf("expected corrupt for two variants, got %v", err)
	}
}

func TestApplyPatchInvariants(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	rec := &Record{AgentID: "agent", ProviderKind: KindNone}

	if err := ApplyPatch(rec, Patch{ProviderKind: KindCustodial, Address: "0x9858effd232b4033e47d90003d41ec34ecaeda94"}, now); err != nil {
		t.Fatalf("first patch: %v", err)
	}
	if rec.Address != "0x9858EfFD232B4033E47d90003D41EC34EcaEda94" || rec.CreatedAt != now.Unix() {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if err := ApplyPatch(rec, Patch{Address: "0x9858EFFD232B4033E47D90003D41EC34ECAEDA94"}, now); err != nil {
		t.Fatalf("same address in other case should be accepted: %v", err)
	}
	if err := ApplyPatch(rec, Patch{Address: "0x00000000000000000000000000000000000000Aa"}, now); xerrors.CodeOf(err) != xerrors.CodeConflict {
		t.Fatalf("expected conflict on address change, got %v", err)
	}
	if err := ApplyPatch(rec, Patch{ProviderKind: KindSafe}, now); xerrors.CodeOf(err) != CodeProviderImmutable {
		t.Fatalf("expected immutable kind, got %v", err)
	}

	limit := units.MustParse("10")
	if err := ApplyPatch(rec, Patch{SetLimit: true, WeeklySpendingLimit: &limit}, now.Add(time.Minute)); err != nil {
		t.Fatalf("limit patch: %v", err)
	}
	if rec.WeeklySpendingLimit == nil || rec.UpdatedAt != now.Add(time.Minute).Unix() || rec.CreatedAt != now.Unix() {
		t.Fatalf("unexpected record after limit patch: %+v", rec)
	}
}
