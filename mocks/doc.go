//go:generate mockgen -destination=spi.go -package=mocks github.com/kidoman/embd SPIBus
//go:generate mockgen -destination=gpio.go -package=mocks github.com/kidoman/embd DigitalPin
package mocks
