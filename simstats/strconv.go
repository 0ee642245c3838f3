package simstats

import "strconv"

func itoa(v int) string      { return strconv.Itoa(v) }
func itoa64(v int64) string  { return strconv.FormatInt(v, 10) }
func ftoa(v float64) string  { return strconv.FormatFloat(v, 'f', 4, 64) }
