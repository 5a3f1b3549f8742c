package usb

import (
	"context"
	"errors"
	"testing"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

func fakeEnumerator(infos []DeviceInfo, err error) Enumerator {
	return func(ctx context.Context, open func(*gousb.DeviceDesc) bool) ([]DeviceInfo, error) {
		return infos, err
	}
}

var attached = []DeviceInfo{
	{VendorID: EpsonVendorID, ProductID: 0x0E28, Bus: 1, Address: 4, Printer: true, Product: "TM-m30III", Serial: "X7LE012345"},
	{VendorID: EpsonVendorID, ProductID: 0x0999, Bus: 1, Address: 5, Printer: true, Product: "TM-L100 "},
	{VendorID: EpsonVendorID, ProductID: 0x1234, Bus: 1, Address: 6},
	{VendorID: 0x046D, ProductID: 0xC52B, Bus: 2, Address: 2, Class: gousb.ClassHID, Product: "Receiver"},
	{VendorID: 0x0519, ProductID: 0x0003, Bus: 2, Address: 3, Printer: true},
}

func TestScanReportsEpsonPrinters(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil).WithEnumerator(fakeEnumerator(attached, nil))

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 2)

	assert.Equal(t, "USB:04B8:0999", devices[0].Identifier)
	assert.Equal(t, "TM-L100", devices[0].DisplayName)

	assert.Equal(t, "USB:04B8:0E28:X7LE012345", devices[1].Identifier)
	assert.Equal(t, "TM-m30III", devices[1].DisplayName)
	assert.Equal(t, model.TransportUSB, devices[1].Transport)
	assert.Equal(t, "1:4", devices[1].HardwareAddress)
}

func TestScanAnyVendor(t *testing.T) {
	s := NewScanner(zap.NewNop(), &Config{}).WithEnumerator(fakeEnumerator(attached, nil))

	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 3)
	assert.Equal(t, "USB:0519:0003", devices[2].Identifier)
	assert.Equal(t, "USB-0519:0003", devices[2].DisplayName)
}

func TestScanEnumerationFailure(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil).WithEnumerator(fakeEnumerator(nil, errors.New("libusb: access denied")))

	_, err := s.Scan(context.Background())
	assert.Error(t, err)

	// A partial listing is still used
	s = NewScanner(zap.NewNop(), nil).WithEnumerator(fakeEnumerator(attached[:1], errors.New("libusb: busy")))
	devices, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, devices, 1)
}

func TestDiagnoseListsEverything(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil).WithEnumerator(fakeEnumerator(attached, nil))

	infos, err := s.Diagnose(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, len(attached))

	m := infos[3].ToMap()
	assert.Equal(t, "046D", m["vendor_id"])
	assert.Equal(t, "C52B", m["product_id"])
	assert.Equal(t, false, m["printer"])
	assert.Equal(t, "USB-Bus2-Port2", m["location"])
}

func TestShouldExamineDevice(t *testing.T) {
	s := NewScanner(zap.NewNop(), nil)

	assert.True(t, s.shouldExamineDevice(&gousb.DeviceDesc{Vendor: EpsonVendorID, Product: 0x0001}))
	assert.False(t, s.shouldExamineDevice(&gousb.DeviceDesc{Vendor: 0x0519, Class: gousb.ClassPrinter}))

	s = NewScanner(zap.NewNop(), &Config{})
	assert.True(t, s.shouldExamineDevice(&gousb.DeviceDesc{Vendor: 0x0519, Class: gousb.ClassPrinter}))
	assert.False(t, s.shouldExamineDevice(&gousb.DeviceDesc{Vendor: 0x046D, Class: gousb.ClassHID}))
}

func TestHasPrinterInterface(t *testing.T) {
	desc := &gousb.DeviceDesc{
		Class: gousb.ClassPerInterface,
		Configs: map[int]gousb.ConfigDesc{
			1: {Interfaces: []gousb.InterfaceDesc{
				{AltSettings: []gousb.InterfaceSetting{{Class: gousb.ClassVendorSpec}}},
				{AltSettings: []gousb.InterfaceSetting{{Class: gousb.ClassPrinter}}},
			}},
		},
	}
	assert.True(t, hasPrinterInterface(desc))

	desc.Configs[1].Interfaces[1].AltSettings[0].Class = gousb.ClassHID
	assert.False(t, hasPrinterInterface(desc))
}

func TestParseVendorIDs(t *testing.T) {
	ids, err := ParseVendorIDs([]string{"04B8", "0x0519", " 1cbe "})
	require.NoError(t, err)
	assert.Equal(t, []gousb.ID{0x04B8, 0x0519, 0x1CBE}, ids)

	_, err = ParseVendorIDs([]string{"EPSON"})
	assert.Error(t, err)
}
