package subghz

import (
	"fmt"
	"sync"
	"time"

	"github.com/kidoman/embd"
	"go.uber.org/zap"
)

const (
	// Read/write flags.
	WRITE_SINGLE_BYTE = 0x00
	WRITE_BURST       = 0x40
	READ_SINGLE_BYTE  = 0x80
	READ_BURST        = 0xc0

	// Bitmask for reading state out of chip status byte.
	STATE = 0x70

	RSSI_OFFSET = 74

	// Strobes
	SRES  = 0x30 // Reset
	SCAL  = 0x33 // Calibrate frequency synthesizer
	SRX   = 0x34 // Set receive mode
	STX   = 0x35 // Set transmit mode
	SIDLE = 0x36
	SFRX  = 0x3a // Flush RX FIFO buffer
	SFTX  = 0x3b // Flush TX FIFO buffer
	SNOP  = 0x3d

	// Status Registers, burst bit already set.
	PARTNUM  = 0xf0
	VERSION  = 0xf1
	LQI_REG  = 0xf3
	RSSI_REG = 0xf4

	PATABLE = 0x3e

	// Config Registers
	IOCFG2 = 0x00
	IOCFG1 = 0x01
	IOCFG0 = 0x02

	FIFOTHR = 0x03

	SYNC1 = 0x04
	SYNC0 = 0x05

	PKTLEN   = 0x06
	PKTCTRL1 = 0x07
	PKTCTRL0 = 0x08

	ADDR = 0x09

	CHANNR  = 0x0a
	FSCTRL1 = 0x0b
	FSCTRL0 = 0x0c

	FREQ2 = 0x0d
	FREQ1 = 0x0e
	FREQ0 = 0x0f

	MDMCFG4 = 0x10
	MDMCFG3 = 0x11
	MDMCFG2 = 0x12
	MDMCFG1 = 0x13
	MDMCFG0 = 0x14

	DEVIATN = 0x15

	MCSM2 = 0x16
	MCSM1 = 0x17
	MCSM0 = 0x18

	FOCCFG = 0x19
	BSCFG  = 0x1a

	AGCCTRL2 = 0x1b
	AGCCTRL1 = 0x1c
	AGCCTRL0 = 0x1d

	WOREVT1 = 0x1e
	WOREVT0 = 0x1f
	WORCTRL = 0x20

	FREND1 = 0x21
	FREND0 = 0x22

	FSCAL3 = 0x23
	FSCAL2 = 0x24
	FSCAL1 = 0x25
	FSCAL0 = 0x26

	RCCTRL1 = 0x27
	RCCTRL0 = 0x28

	FSTEST  = 0x29
	PTEST   = 0x2a
	AGCTEST = 0x2b
	TEST2   = 0x2c
	TEST1   = 0x2d
	TEST0   = 0x2e

	// GDOx output selections.
	IOCFG_ASYNC_SERIAL = 0x0d
	IOCFG_HIGH_Z       = 0x2e
	IOCFG_INV          = 0x40

	CrystalHz = 26000000
)

// Worst case state change is ~800us for IDLE -> RX with calibration.
var stateSettle = time.Millisecond

// Copied from TI datasheet.
func convertRSSI(rssi int) float32 {
	if rssi >= 128 {
		return float32(rssi-256)/2 - RSSI_OFFSET
	}
	return float32(rssi)/2 - RSSI_OFFSET
}

// frequencyWord returns the FREQ2:FREQ0 value closest to hz.
func frequencyWord(hz uint32) uint32 {
	return uint32((uint64(hz)<<16 + CrystalHz/2) / CrystalHz)
}

// CC1101 is register level access to the transceiver.
type CC1101 struct {
	bus    embd.SPIBus
	logger *zap.Logger
	lock   sync.Mutex
}

func NewCC1101(bus embd.SPIBus, logger *zap.Logger) *CC1101 {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CC1101{bus: bus, logger: logger}
}

func (c *CC1101) Close() error {
	c.Reset()
	return c.bus.Close()
}

func (c *CC1101) transfer(data []byte) error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.bus.TransferAndReceiveData(data)
}

func (c *CC1101) Strobe(address byte) (byte, error) {
	data := []byte{address, 0x00}
	err := c.transfer(data)
	if err != nil {
		return 0, err
	}
	return data[0], nil
}

func (c *CC1101) ReadSingleByte(address byte) (byte, error) {
	data := []byte{address | READ_SINGLE_BYTE, 0x00}
	err := c.transfer(data)
	if err != nil {
		return 0x00, err
	}
	return data[1], nil
}

// ReadStatus reads one of the status registers (0x30-0x3d with the burst bit set).
func (c *CC1101) ReadStatus(address byte) (byte, error) {
	data := []byte{address | READ_BURST, 0x00}
	err := c.transfer(data)
	if err != nil {
		return 0x00, err
	}
	return data[1], nil
}

func (c *CC1101) WriteSingleByte(address byte, in byte) error {
	data := []byte{address | WRITE_SINGLE_BYTE, in}
	return c.transfer(data)
}

func (c *CC1101) WriteBurst(address byte, data []byte) error {
	buf := make([]byte, 0, len(data)+1)
	buf = append(buf, address|WRITE_BURST)
	buf = append(buf, data...)
	return c.transfer(buf)
}

func (c *CC1101) Reset() error {
	_, err := c.Strobe(SRES)
	return err
}

func (c *CC1101) SelfTest() error {
	version, err := c.ReadSingleByte(VERSION)
	if err != nil {
		return err
	}
	partnum, err := c.ReadSingleByte(PARTNUM)
	if err != nil {
		return err
	}
	c.logger.Debug("Chip identified", zap.Uint8("version", version), zap.Uint8("partnum", partnum))

	if version != 0x14 || partnum != 0x00 {
		return fmt.Errorf("self test failed: got version 0x%x partnum 0x%x", version, partnum)
	}
	return nil
}

func (c *CC1101) SetState(state byte) error {
	c.logger.Debug("Setting chip state", zap.Uint8("strobe", state))
	_, err := c.Strobe(state)
	time.Sleep(stateSettle)
	return err
}

func (c *CC1101) SetRx() error {
	return c.SetState(SRX)
}

func (c *CC1101) SetTx() error {
	return c.SetState(STX)
}

func (c *CC1101) SetIdle() error {
	return c.SetState(SIDLE)
}

func (c *CC1101) Calibrate() error {
	return c.SetState(SCAL)
}

func (c *CC1101) FlushRx() {
	c.SetState(SIDLE)
	c.Strobe(SFRX)
}

// WriteRegisters writes a preset table in order.
func (c *CC1101) WriteRegisters(regs []RegisterValue) error {
	for _, r := range regs {
		if err := c.WriteSingleByte(r.Address, r.Value); err != nil {
			return fmt.Errorf("failed to write register 0x%02x: %v", r.Address, err)
		}
	}
	return nil
}

func (c *CC1101) WritePATable(table [8]byte) error {
	return c.WriteBurst(PATABLE, table[:])
}

// SetFrequency programs the synthesizer and returns the frequency it actually produces.
func (c *CC1101) SetFrequency(hz uint32) (uint32, error) {
	word := frequencyWord(hz)
	err := c.WriteBurst(FREQ2, []byte{byte(word >> 16), byte(word >> 8), byte(word)})
	if err != nil {
		return 0, err
	}
	return uint32((uint64(word)*CrystalHz + 1<<15) >> 16), nil
}

func (c *CC1101) ReadRSSI() (float32, error) {
	raw, err := c.ReadStatus(RSSI_REG)
	if err != nil {
		return 0, err
	}
	return convertRSSI(int(raw)), nil
}

func (c *CC1101) ReadLQI() (uint8, error) {
	raw, err := c.ReadStatus(LQI_REG)
	if err != nil {
		return 0, err
	}
	return raw & 0x7f, nil
}
