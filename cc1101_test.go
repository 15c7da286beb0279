package subghz

import (
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/hatstand/subghz/mocks"

	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	stateSettle = 0
}

func WithMocks(t *testing.T, f func(bus *mocks.MockSPIBus, cc1101 *CC1101)) func() {
	return func() {
		mock := gomock.NewController(t)
		defer mock.Finish()
		bus := mocks.NewMockSPIBus(mock)
		cc1101 := NewCC1101(bus, nil)
		f(bus, cc1101)
	}
}

func TestSelfTest(t *testing.T) {
	Convey("Init", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{VERSION | READ_SINGLE_BYTE, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x14})
		bus.EXPECT().TransferAndReceiveData([]byte{PARTNUM | READ_SINGLE_BYTE, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x00})

		So(cc1101.SelfTest(), ShouldBeNil)
	}))
	Convey("Wrong chip", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{VERSION | READ_SINGLE_BYTE, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x04})
		bus.EXPECT().TransferAndReceiveData([]byte{PARTNUM | READ_SINGLE_BYTE, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x00})

		So(cc1101.SelfTest(), ShouldNotBeNil)
	}))
}

func TestStrobe(t *testing.T) {
	Convey("Strobe", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{0x42, 0x00}).Return(nil).SetArg(0, []byte{0x43, 0x00})

		ret, err := cc1101.Strobe(0x42)
		So(err, ShouldBeNil)
		So(ret, ShouldEqual, 0x43)
	}))
}

func TestReset(t *testing.T) {
	Convey("Reset", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{SRES, 0x00}).Return(nil)

		So(cc1101.Reset(), ShouldBeNil)
	}))
}

func TestSetState(t *testing.T) {
	Convey("RX", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{SRX, 0x00}).Return(nil)
		So(cc1101.SetRx(), ShouldBeNil)
	}))
	Convey("TX", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{STX, 0x00}).Return(nil)
		So(cc1101.SetTx(), ShouldBeNil)
	}))
	Convey("IDLE", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{SIDLE, 0x00}).Return(nil)
		So(cc1101.SetIdle(), ShouldBeNil)
	}))
	Convey("Flush RX buffer", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		gomock.InOrder(
			bus.EXPECT().TransferAndReceiveData([]byte{SIDLE, 0x00}).Return(nil),
			bus.EXPECT().TransferAndReceiveData([]byte{SFRX, 0x00}).Return(nil),
		)
		cc1101.FlushRx()
	}))
}

func TestFrequency(t *testing.T) {
	Convey("433.92MHz", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{FREQ2 | WRITE_BURST, 0x10, 0xb0, 0x71}).Return(nil)

		synth, err := cc1101.SetFrequency(433920000)
		So(err, ShouldBeNil)
		So(synth, ShouldEqual, 433919830)
	}))
}

func TestRSSI(t *testing.T) {
	Convey("Negative raw values", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{RSSI_REG, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x80})

		rssi, err := cc1101.ReadRSSI()
		So(err, ShouldBeNil)
		So(rssi, ShouldEqual, -138)
	}))
	Convey("Positive raw values", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{RSSI_REG, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0x40})

		rssi, err := cc1101.ReadRSSI()
		So(err, ShouldBeNil)
		So(rssi, ShouldEqual, -42)
	}))
	Convey("LQI drops the CRC bit", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{LQI_REG, 0x00}).Return(nil).SetArg(0, []byte{0x00, 0xaa})

		lqi, err := cc1101.ReadLQI()
		So(err, ShouldBeNil)
		So(lqi, ShouldEqual, 0x2a)
	}))
}

func TestPATable(t *testing.T) {
	Convey("PA table is burst written", t, WithMocks(t, func(bus *mocks.MockSPIBus, cc1101 *CC1101) {
		bus.EXPECT().TransferAndReceiveData([]byte{PATABLE | WRITE_BURST, 0x00, 0xc0, 0, 0, 0, 0, 0, 0}).Return(nil)
		So(cc1101.WritePATable(ookPATable), ShouldBeNil)
	}))
}
