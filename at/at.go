package at

const (
	// Terminal Control
	CRLF = "\r\n"

	// Response Codes
	OK       = "OK"
	ERROR    = "ERROR"
	CmeError = "+CME ERROR:"

	// URCs (Unsolicited Result Codes)
	UrcConnection   = "+CSCON:"
	UrcRegistration = "+CEREG:"
	UrcPowerSave    = "+NPSMR:"
	UrcCoAPData     = "+UCOAPCD:"
	UrcReady        = "READY"
	UrcRebooting    = "REBOOTING"
)

// Commands
const (
	CmdAt            = "AT"
	CmdVerboseErrors = "AT+CMEE=1"
	CmdReboot        = "AT+NRB"

	CmdRadioOn    = "AT+CFUN=1"
	CmdRadioOff   = "AT+CFUN=0"
	CmdRadioQuery = "AT+CFUN?"

	CmdAttach        = "AT+CGATT=1"
	CmdDetach        = "AT+CGATT=0"
	CmdAutoRegister  = "AT+COPS=0"
	CmdDeregister    = "AT+COPS=2"
	CmdRegistration  = "AT+CEREG?"
	CmdConnection    = "AT+CSCON?"
	CmdPowerSaveStat = "AT+NPSMR?"

	// Unsolicited reporting: +CEREG: <stat>, +CSCON: <mode>, +NPSMR: <mode>
	CmdRegistrationURC = "AT+CEREG=1"
	CmdConnectionURC   = "AT+CSCON=1"
	CmdPowerSaveURC    = "AT+NPSMR=1"

	CmdPSMOn    = "AT+CPSMS=1"
	CmdPSMOff   = "AT+CPSMS=0"
	CmdPSMQuery = "AT+CPSMS?"
	CmdSetT3412 = `AT+CPSMS=1,,,"%s"`
	CmdSetT3324 = `AT+CPSMS=1,,,,"%s"`

	CmdConfigUE      = `AT+NCONFIG="%s","%s"`
	CmdConfigUEQuery = "AT+NCONFIG?"
	CmdSignal        = "AT+CSQ"
	CmdUEStats       = "AT+NUESTATS"

	CmdSelectCoAP     = "AT+USELCP=1"
	CmdCoAPIPPort     = `AT+UCOAP=0,"%s","%d"`
	CmdCoAPURI        = `AT+UCOAP=1,"%s"`
	CmdCoAPPDUHeader  = `AT+UCOAP=2,"%d","%d"`
	CmdCoAPSelect     = `AT+UCOAP=3,"%d"`
	CmdCoAPValidity   = `AT+UCOAP=4,"%d"`
	CmdCoAPSave       = `AT+UCOAP=5,"%d"`
	CmdCoAPLoad       = `AT+UCOAP=6,"%d"`
	CmdCoAPVerb       = "AT+UCOAPC=%d"
	CmdCoAPVerbData   = `AT+UCOAPC=%d,"%s",%d`
	CmdCoAPVerbBlock  = `AT+UCOAPC=%d,"%s",%d,%d,%d`
	NConfigTrue       = "TRUE"
	NConfigFalse      = "FALSE"
	PDUOptionURIPath  = 5
	PDUOptionIncluded = 1
)

type ResponseType int

const (
	TypeFinal ResponseType = iota // OK, ERROR
	TypeURC                       // Asynchronous notifications
	TypeData                      // Intermediate command output (+CSQ: ...)
)

func (t ResponseType) String() string {
	switch t {
	case TypeFinal:
		return "final"
	case TypeURC:
		return "urc"
	case TypeData:
		return "data"
	default:
		return "unknown"
	}
}
