// Package visa is the instrument bus capability consumed by the hub.
//
// A Manager lists resource addresses and opens them as line-oriented
// Resources. The first listed address is always the manager's own
// meta-resource (ManagerAddress); callers enumerating instruments skip it.
//
// Supported address forms:
//
//	TCPIP[board]::host::port::SOCKET   raw SCPI socket
//	ASRL<device>::INSTR                serial port (ASRL/dev/ttyUSB0::INSTR, ASRL3::INSTR)
//	SIM::<name>::INSTR                 simulated instrument from config
//
// Resources are never pooled. Every operation opens, uses and closes its own
// handle.
package visa
