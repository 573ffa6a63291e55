package gateway_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/bursar/gateway"
	"github.com/xraph/bursar/gateway/gatewaytest"
	"github.com/xraph/bursar/id"
	"github.com/xraph/bursar/types"
)

func TestRegistry(t *testing.T) {
	r := gateway.NewRegistry(gatewaytest.New("stripe", "s"))
	require.NoError(t, r.Register(gatewaytest.New("paystack", "p")))

	err := r.Register(gatewaytest.New("stripe", "other"))
	assert.ErrorContains(t, err, "duplicate")

	g, err := r.Get("paystack")
	require.NoError(t, err)
	assert.Equal(t, "paystack", g.Name())

	_, err = r.Get("flutterwave")
	assert.ErrorIs(t, err, gateway.ErrUnknownGateway)

	assert.Equal(t, []string{"paystack", "stripe"}, r.Names())
}

func TestRoutingMetadata(t *testing.T) {
	invID := id.NewInvoiceID()
	req := gateway.CheckoutRequest{
		TenantID:  "t1",
		UserID:    "u9",
		InvoiceID: invID,
		Amount:    types.USD(100),
		Metadata:  map[string]string{"campaign": "spring", gateway.MetadataTenantID: "spoofed"},
	}

	md := req.RoutingMetadata()
	assert.Equal(t, "t1", md[gateway.MetadataTenantID], "caller metadata must not override the tenant")
	assert.Equal(t, invID.String(), md[gateway.MetadataInvoiceID])
	assert.Equal(t, "u9", md[gateway.MetadataUserID])
	assert.Equal(t, "spring", md["campaign"])
	assert.NotContains(t, md, gateway.MetadataPlanID)

	md["campaign"] = "changed"
	assert.Equal(t, "spring", req.Metadata["campaign"])
}
