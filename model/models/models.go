package models

import (
	_ "github.com/stylegans/stylegans/model/models/stylegan1"
	_ "github.com/stylegans/stylegans/model/models/stylegan2"
)
