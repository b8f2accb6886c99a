package tuplestore

// Four named DBIs (mdbx's term for separate namespaces within one
// environment file) make up the store: one primary table and three
// secondary indices kept in lockstep with it.
//
// Physical layout:
//
//	rows (IntegerKey)
//	  key   - pk, native machine word
//	  value - iden(16) || prop || value || timestamp
//
//	ip (DupSort)
//	  key   - iden(16) || encoded_prop
//	  value - pk
//
//	pvt (DupSort)
//	  key   - encoded_prop || encoded_value_key || encoded_timestamp
//	  value - pk
//	  sentinels: 0x00 (leading, backward-cursor guard) and 0xff*20 (trailing)
//
//	pt (DupSort)
//	  key   - encoded_prop || encoded_timestamp
//	  value - pk
//	  sentinel: 0xff*20 (trailing)
const (
	tableRows = "rows"
	tableIP   = "ip"
	tablePVT  = "pvt"
	tablePT   = "pt"
)
