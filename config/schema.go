package config

// Schemas for each recognised back-end, per spec section 6.

var CPCSchema = Schema{
	{Name: "cpc-dev", Type: String, Default: "/dev/usb-s5200v20-1", Description: "CPC-USB channel device path"},
	{Name: "cpc-bit-rate", Type: Int, Default: "1000", Min: 10, Max: 1000, Description: "CAN bitrate, kbit/s"},
	{Name: "cpc-quanta-per-bit", Type: Int, Default: "8", Min: 8, Max: 16, Description: "Time quanta per bit"},
	{Name: "cpc-sampling-point", Type: Float, Default: "0.75", Min: 0.75, Max: 0.875, Description: "Sampling point, fraction of bit time"},
	{Name: "cpc-timeout", Type: Float, Default: "1.0", Min: 0, Max: 3600, Description: "Send/receive timeout, seconds"},
}

var SerialSchema = Schema{
	{Name: "serial-dev", Type: String, Default: "/dev/ttyS0", Description: "RS-232 device path"},
	{Name: "serial-node", Type: Int, Default: "1", Min: 1, Max: 127, Description: "EPOS node id addressed on this point-to-point link"},
	{Name: "serial-baud-rate", Type: Int, Default: "38400", Min: 50, Max: 230400, Description: "Baud rate"},
	{Name: "serial-data-bits", Type: Int, Default: "8", Min: 5, Max: 8, Description: "Data bits"},
	{Name: "serial-stop-bits", Type: Int, Default: "1", Min: 1, Max: 2, Description: "Stop bits"},
	{Name: "serial-parity", Type: Enum, Default: "none", Choices: []string{"none", "odd", "even"}, Description: "Parity"},
	{Name: "serial-flow-ctrl", Type: Enum, Default: "off", Choices: []string{"off", "xon_xoff", "rts_cts"}, Description: "Flow control"},
	{Name: "serial-timeout", Type: Float, Default: "1.0", Min: 0, Max: 3600, Description: "Send/receive timeout, seconds"},
}

var USBSchema = Schema{
	{Name: "usb-dev", Type: String, Default: "", Description: "USB bus/device path"},
	{Name: "usb-node", Type: Int, Default: "1", Min: 1, Max: 127, Description: "EPOS node id addressed on this point-to-point link"},
	{Name: "usb-serial-interface", Type: Enum, Default: "any", Choices: []string{"any", "a", "b", "c", "d"}, Description: "FTDI interface selector"},
	{Name: "usb-serial-baud-rate", Type: Int, Default: "1000000", Min: 183, Max: 3000000, Description: "Baud rate"},
	{Name: "usb-serial-data-bits", Type: Int, Default: "8", Min: 7, Max: 8, Description: "Data bits"},
	{Name: "usb-serial-stop-bits", Type: Int, Default: "1", Min: 1, Max: 15, Description: "Stop bits"},
	{Name: "usb-serial-parity", Type: Enum, Default: "none", Choices: []string{"none", "odd", "even", "mark", "space"}, Description: "Parity"},
	{Name: "usb-serial-flow-ctrl", Type: Enum, Default: "off", Choices: []string{"off", "xon_xoff", "rts_cts", "dtr_dsr"}, Description: "Flow control"},
	{Name: "usb-serial-break", Type: Enum, Default: "off", Choices: []string{"off", "on"}, Description: "Break condition"},
	{Name: "usb-serial-timeout", Type: Float, Default: "1.0", Min: 0, Max: 3600, Description: "Send/receive timeout, seconds"},
	{Name: "usb-serial-latency", Type: Float, Default: "0.016", Min: 0.001, Max: 0.255, Description: "FTDI latency timer, seconds"},
}
