package models

// Parameter is the measured physical quantity of a reading.
type Parameter string

const (
	ParameterNone            Parameter = "none"
	ParameterPH              Parameter = "ph"
	ParameterChlorine        Parameter = "chlorine"
	ParameterFluoride        Parameter = "fluoride"
	ParameterDissolvedOxygen Parameter = "dissolved_oxygen"
	ParameterTurbidity       Parameter = "turbidity"
	ParameterTemperature     Parameter = "temperature"
	ParameterConductivity    Parameter = "conductivity"
	ParameterTDS             Parameter = "tds"
	ParameterFlow            Parameter = "flow"
	ParameterPressure        Parameter = "pressure"
	ParameterLevel           Parameter = "level"
	ParameterVibration       Parameter = "vibration"
	ParameterVoltage         Parameter = "voltage"
	ParameterCurrent         Parameter = "current"
	ParameterPower           Parameter = "power"
	ParameterEnergy          Parameter = "energy"
)

// Protocol is the transport a reading arrived on.
type Protocol string

const (
	ProtocolMQTT   Protocol = "mqtt"
	ProtocolOPCUA  Protocol = "opc_ua"
	ProtocolModbus Protocol = "modbus"
	ProtocolHTTP   Protocol = "http"
	ProtocolBACnet Protocol = "bacnet"
)

// Quality is the device-reported confidence in a reading.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityUncertain Quality = "uncertain"
	QualityBad       Quality = "bad"
	QualitySimulated Quality = "simulated"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// CommandStatus is the terminal state a device reports for a command.
type CommandStatus string

const (
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
	CommandStatusTimeout   CommandStatus = "timeout"
)
