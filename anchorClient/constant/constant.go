package constant

import "os"

// <NodeDir>/                    (e.g., /home/issuer/.anchord)
// └── config/
//	└── anchord_config.json
// └── data/
//	└── journal.db

const (
	NodeDir = ".anchord"

	ConfigSubdir   = "config"
	ConfigFileName = "anchord_config.json"

	DataSubdir = "data"
)

var DefaultNodeHome = os.ExpandEnv("$HOME/") + NodeDir
