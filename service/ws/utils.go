// Copyright (c) 2022-present Mattermost, Inc. All Rights Reserved.
// See LICENSE.txt for license information.

package ws

import (
	"github.com/sfurelay/rtcd/service/random"
)

const charset = "ybndrfg8ejkmcpqxot1uwisza345h769"

func newID() string {
	return random.NewID()
}
