package tax_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/warp/tax-engine/tax"
	"github.com/warp/tax-engine/tax/mocks"
)

func TestSelectRates_Filters(t *testing.T) {
	q2 := tax.MustParseDate("2025-04-01")
	q3 := tax.MustParseDate("2025-07-01")

	rates := []tax.RateDefinition{
		{ID: "global", JurisdictionID: "st"},
		{ID: "voice", JurisdictionID: "st", CategoryID: "voice"},
		{ID: "data", JurisdictionID: "st", CategoryID: "data"},
		{ID: "voip-only", JurisdictionID: "st", ServiceTypes: []string{"VoIP"}},
		{ID: "wireless-only", JurisdictionID: "st", ServiceTypes: []string{"wireless"}},
		{ID: "elsewhere", JurisdictionID: "ny"},
		{ID: "expired", JurisdictionID: "st", Window: tax.Window{Expiry: &q2}},
		{ID: "future", JurisdictionID: "st", Window: tax.Window{Effective: q3}},
		{ID: "boundary", JurisdictionID: "st", Window: tax.Window{Effective: q2, Expiry: &q3}},
	}

	got := tax.SelectRates(rates, []tax.JurisdictionID{"st", "fed"}, tax.SelectionCriteria{
		Category: "voice", ServiceType: "voip", AsOf: q2,
	})

	ids := make([]tax.RateID, len(got))
	for i, r := range got {
		ids[i] = r.ID
	}
	assert.Equal(t, []tax.RateID{"boundary", "global", "voice", "voip-only"}, ids)
}

func TestSelect_EmptyIsNotAnError(t *testing.T) {
	ctrl := gomock.NewController(t)
	ref := mocks.NewMockReferenceData(ctrl)
	ref.EXPECT().Rates(gomock.Any(), []tax.JurisdictionID{"fed", "st"}).Return(nil, nil)

	got, err := tax.NewRateSelector(ref).Select(context.Background(), []tax.Jurisdiction{federal, state}, tax.SelectionCriteria{Category: "voice"})
	require.NoError(t, err)
	assert.Empty(t, got)
}
