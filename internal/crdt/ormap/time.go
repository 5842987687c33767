package ormap

import "time"

func systemNowMillis() int64 { return time.Now().UnixMilli() }
