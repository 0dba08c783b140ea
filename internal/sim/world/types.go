package world

import modelpkg "dyewash.ai/internal/sim/world/kernel/model"

type Vec3i = modelpkg.Vec3i
type ItemEntity = modelpkg.ItemEntity
type Cauldron = modelpkg.Cauldron
