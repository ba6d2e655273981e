package dispatch

import "fastdelivery/internal/model"

// Capability is the fixed per-vehicle resource and timing profile. A turn
// may not exceed MaxLoad kilograms, MaxRegions distinct regions or
// MaxOrders orders; the first delivery of a turn costs FirstMin minutes,
// every following one NextMin.
type Capability struct {
    MaxLoad    float64
    MaxRegions int
    MaxOrders  int
    FirstMin   int
    NextMin    int
}

var capabilities = map[model.VehicleType]Capability{
    model.VehicleFoot: {MaxLoad: 10, MaxRegions: 1, MaxOrders: 2, FirstMin: 25, NextMin: 10},
    model.VehicleBike: {MaxLoad: 20, MaxRegions: 2, MaxOrders: 4, FirstMin: 12, NextMin: 8},
    model.VehicleAuto: {MaxLoad: 40, MaxRegions: 3, MaxOrders: 7, FirstMin: 8, NextMin: 4},
}

// CapabilityFor looks up the capability profile for a vehicle type. An
// unrecognized type yields the zero Capability: such a shift can never
// pass the weight check, so one malformed courier record degrades to an
// unusable shift instead of aborting the run.
func CapabilityFor(v model.VehicleType) Capability {
    return capabilities[v]
}

// Coefficients returns the earnings and rating multipliers used by the
// courier meta-info endpoint. Unknown types earn nothing.
func Coefficients(v model.VehicleType) (earnings, rating int) {
    switch v {
    case model.VehicleFoot:
        return 2, 3
    case model.VehicleBike:
        return 3, 2
    case model.VehicleAuto:
        return 4, 1
    }
    return 0, 0
}
