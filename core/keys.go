package core

// IndexKey builds the composite namespaced key spec §3 describes:
// "<db_name>:<key>" or "<db_name>:<key>:<field>" when field is non-empty
// (the sub-key form used for Hash fields, JSON paths, Geo members,
// TimeSeries points and Stream ids alike — the field carries whatever
// per-type sub-selector mergeValue needs, not just a Hash field name).
func IndexKey(dbName, key, field string) []byte {
	if field == "" {
		return []byte(dbName + ":" + key)
	}
	return []byte(dbName + ":" + key + ":" + field)
}
